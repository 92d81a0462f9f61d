// Package geo enriches flow addresses with city, country, and ASN data
// from MaxMind database files. Missing databases and unparseable
// addresses degrade to empty records; enrichment never blocks or fails
// the pipeline.
package geo

import (
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"
	"github.com/sirupsen/logrus"

	"github.com/intellicloud/netsentry/pkg/models"
)

type cityRecord struct {
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

type asnRecord struct {
	Number uint   `maxminddb:"autonomous_system_number"`
	Org    string `maxminddb:"autonomous_system_organization"`
}

// Readers holds the optional city and ASN database handles. Either may
// be nil; lookups against a nil handle yield empty records.
type Readers struct {
	mu       sync.RWMutex
	city     *maxminddb.Reader
	asn      *maxminddb.Reader
	cityPath string
	asnPath  string
	log      *logrus.Logger
}

// Open loads whichever databases exist at the given paths. A missing or
// unreadable file leaves that handle nil with a warning; Open itself
// never fails.
func Open(cityPath, asnPath string, log *logrus.Logger) *Readers {
	r := &Readers{cityPath: cityPath, asnPath: asnPath, log: log}
	r.city = r.open(cityPath)
	r.asn = r.open(asnPath)
	return r
}

func (r *Readers) open(path string) *maxminddb.Reader {
	if path == "" {
		return nil
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		if r.log != nil {
			r.log.WithError(err).WithField("path", path).Warn("GeoIP database not loaded")
		}
		return nil
	}
	return db
}

// Reload closes the current handles and reopens the configured paths.
// Taking the write lock for the swap waits out every in-flight lookup,
// so the old handles are unreachable by the time they are closed.
func (r *Readers) Reload() {
	city := r.open(r.cityPath)
	asn := r.open(r.asnPath)

	r.mu.Lock()
	oldCity, oldASN := r.city, r.asn
	r.city, r.asn = city, asn
	r.mu.Unlock()

	if oldCity != nil {
		oldCity.Close()
	}
	if oldASN != nil {
		oldASN.Close()
	}
}

// Close releases both database handles.
func (r *Readers) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.city != nil {
		r.city.Close()
		r.city = nil
	}
	if r.asn != nil {
		r.asn.Close()
		r.asn = nil
	}
}

// Enrich looks up one address. It returns nil when nothing was found so
// callers can leave the event's geo field unset.
func (r *Readers) Enrich(ip string) *models.GeoInfo {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil
	}

	// The read lock is held across the lookups: Reload closes the old
	// handles once it wins the write lock, and a lookup against a
	// closed reader touches unmapped memory.
	r.mu.RLock()
	defer r.mu.RUnlock()

	var info models.GeoInfo
	if r.city != nil {
		var rec cityRecord
		if err := r.city.Lookup(addr, &rec); err == nil {
			info.City = rec.City.Names["en"]
			info.Country = rec.Country.ISOCode
		}
	}
	if r.asn != nil {
		var rec asnRecord
		if err := r.asn.Lookup(addr, &rec); err == nil {
			info.ASN = rec.Number
			info.ASNOrg = rec.Org
		}
	}

	if info == (models.GeoInfo{}) {
		return nil
	}
	return &info
}

// EnrichPair looks up source and destination independently; a failure on
// one side leaves the other intact.
func (r *Readers) EnrichPair(src, dst string) (*models.GeoInfo, *models.GeoInfo) {
	return r.Enrich(src), r.Enrich(dst)
}

// Status reports which databases are configured and loaded, for the
// preflight endpoint.
func (r *Readers) Status() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]interface{}{
		"city_db":     r.cityPath,
		"city_loaded": r.city != nil,
		"asn_db":      r.asnPath,
		"asn_loaded":  r.asn != nil,
	}
}
