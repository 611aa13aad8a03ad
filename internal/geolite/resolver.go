package geolite

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver answers country lookups against a local GeoLite2 database.
// Enrichment is optional and purely informational; the pool works the same
// without it.
type Resolver struct {
	reader *geoip2.Reader
}

func Open(path string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{reader: reader}, nil
}

// Country returns the English country name for a host, or "" when the host
// is not an IP literal or has no record.
func (r *Resolver) Country(host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}

	record, err := r.reader.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.Names["en"]
}

func (r *Resolver) Close() error {
	return r.reader.Close()
}
