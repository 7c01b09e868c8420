package geo

import (
	"net"
	"net/http/httptest"
	"testing"

	"github.com/oschwald/geoip2-golang"

	"github.com/geocoder89/replayhub/internal/domain/snapshot"
)

type fakeIPDB struct {
	country string
	city    string
}

func (f *fakeIPDB) City(ip net.IP) (*geoip2.City, error) {
	rec := &geoip2.City{}
	rec.Country.IsoCode = f.country
	rec.City.Names = map[string]string{"en": f.city}
	return rec, nil
}

func TestResolve_PlatformMetadataWins(t *testing.T) {
	r := NewResolver(&fakeIPDB{country: "US"})

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("X-Platform-Geo", `{"country":"DE","city":"Berlin","lat":52.5,"lon":13.4}`)
	req.Header.Set("x-geo-country", "FR")

	g := r.Resolve(req)

	if g.Country != "DE" || g.Source != snapshot.GeoSourcePlatform {
		t.Fatalf("expected platform DE, got %+v", g)
	}
}

func TestResolve_ViewerCountryBeatsExplicitHeader(t *testing.T) {
	r := NewResolver(nil)

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("CloudFront-Viewer-Country", "GB")
	req.Header.Set("x-geo-country", "FR")

	g := r.Resolve(req)

	if g.Country != "GB" {
		t.Fatalf("expected GB, got %q", g.Country)
	}
	if g.Source != snapshot.GeoSourcePlatform {
		t.Fatalf("CDN headers count as platform, got %q", g.Source)
	}
}

func TestResolve_ExplicitHeaders(t *testing.T) {
	r := NewResolver(nil)

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("x-geo-country", "FR")
	req.Header.Set("x-geo-city", "Paris")
	req.Header.Set("x-geo-lat", "48.85")

	g := r.Resolve(req)

	if g.Country != "FR" || g.City != "Paris" || g.Source != snapshot.GeoSourceHeader {
		t.Fatalf("unexpected geo: %+v", g)
	}
	if g.Lat < 48 || g.Lat > 49 {
		t.Fatalf("expected lat parsed, got %v", g.Lat)
	}
}

func TestResolve_IPFallback(t *testing.T) {
	r := NewResolver(&fakeIPDB{country: "JP", city: "Tokyo"})

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	g := r.Resolve(req)

	if g.Country != "JP" || g.City != "Tokyo" || g.Source != snapshot.GeoSourceIP {
		t.Fatalf("unexpected geo: %+v", g)
	}
}

func TestResolve_NoneWhenNothingMatches(t *testing.T) {
	r := NewResolver(nil)

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.RemoteAddr = "bad-addr"

	g := r.Resolve(req)

	if g.Source != snapshot.GeoSourceNone || g.Country != "" {
		t.Fatalf("expected none, got %+v", g)
	}
}
