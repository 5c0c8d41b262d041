package service

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	created           metric.Int64Counter
	dedupHits         metric.Int64Counter
	redirects         metric.Int64Counter
	collisions        metric.Int64Counter
	integrityFailures metric.Int64Counter
}

func newInstruments() (*instruments, error) {
	meter := otel.Meter("github.com/zhejian/cipherlink/internal/service")

	var (
		m   instruments
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.created, "cipherlink.urls.created", "Short URLs written to the store"},
		{&m.dedupHits, "cipherlink.urls.dedup_hits", "Create requests answered with an existing entry"},
		{&m.redirects, "cipherlink.redirects", "Short codes resolved to their original URL"},
		{&m.collisions, "cipherlink.shortcode.collisions", "Generated short codes rejected by the unique index"},
		{&m.integrityFailures, "cipherlink.crypto.integrity_failures", "Stored URLs that failed authenticated decryption"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}
