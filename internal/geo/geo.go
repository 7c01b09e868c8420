package geo

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"github.com/geocoder89/replayhub/internal/domain/snapshot"
)

// headers consulted by the chain, in precedence order
const (
	platformGeoHeader = "X-Platform-Geo"

	viewerCountryHeader = "CloudFront-Viewer-Country"
	viewerRegionHeader  = "CloudFront-Viewer-Country-Region"
	viewerCityHeader    = "CloudFront-Viewer-City"
	viewerLatHeader     = "CloudFront-Viewer-Latitude"
	viewerLonHeader     = "CloudFront-Viewer-Longitude"
)

// IPLookup is the slice of the MaxMind reader the resolver needs.
type IPLookup interface {
	City(ip net.IP) (*geoip2.City, error)
}

// Resolver walks an ordered chain of extractors and stops at the first
// one that yields a country. Evaluated once per request; the result is
// attached to the request context by the middleware.
type Resolver struct {
	ipdb IPLookup
}

func NewResolver(ipdb IPLookup) *Resolver {
	return &Resolver{ipdb: ipdb}
}

// OpenMMDB opens the bundled IP database. A missing path disables the IP
// step rather than failing startup.
func OpenMMDB(path string) (*geoip2.Reader, error) {
	if path == "" {
		return nil, nil
	}
	return geoip2.Open(path)
}

func (r *Resolver) Resolve(req *http.Request) snapshot.Geo {
	if g, ok := fromPlatformMetadata(req); ok {
		return g
	}
	if g, ok := fromViewerHeaders(req); ok {
		return g
	}
	if g, ok := fromExplicitHeaders(req); ok {
		return g
	}
	if g, ok := r.fromIP(req); ok {
		return g
	}

	return snapshot.Geo{Source: snapshot.GeoSourceNone}
}

// edge runtimes attach a JSON blob describing the viewer
func fromPlatformMetadata(req *http.Request) (snapshot.Geo, bool) {
	raw := req.Header.Get(platformGeoHeader)
	if raw == "" {
		return snapshot.Geo{}, false
	}

	var meta struct {
		Country string  `json:"country"`
		Region  string  `json:"region"`
		City    string  `json:"city"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}

	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return snapshot.Geo{}, false
	}
	if meta.Country == "" {
		return snapshot.Geo{}, false
	}

	return snapshot.Geo{
		Country: meta.Country,
		Region:  meta.Region,
		City:    meta.City,
		Lat:     meta.Lat,
		Lon:     meta.Lon,
		Source:  snapshot.GeoSourcePlatform,
	}, true
}

func fromViewerHeaders(req *http.Request) (snapshot.Geo, bool) {
	country := req.Header.Get(viewerCountryHeader)
	if country == "" {
		return snapshot.Geo{}, false
	}

	lat, _ := strconv.ParseFloat(req.Header.Get(viewerLatHeader), 64)
	lon, _ := strconv.ParseFloat(req.Header.Get(viewerLonHeader), 64)

	return snapshot.Geo{
		Country: country,
		Region:  req.Header.Get(viewerRegionHeader),
		City:    req.Header.Get(viewerCityHeader),
		Lat:     lat,
		Lon:     lon,
		Source:  snapshot.GeoSourcePlatform,
	}, true
}

func fromExplicitHeaders(req *http.Request) (snapshot.Geo, bool) {
	country := req.Header.Get("x-geo-country")
	if country == "" {
		return snapshot.Geo{}, false
	}

	lat, _ := strconv.ParseFloat(req.Header.Get("x-geo-lat"), 64)
	lon, _ := strconv.ParseFloat(req.Header.Get("x-geo-lon"), 64)

	return snapshot.Geo{
		Country: country,
		Region:  req.Header.Get("x-geo-region"),
		City:    req.Header.Get("x-geo-city"),
		Lat:     lat,
		Lon:     lon,
		Source:  snapshot.GeoSourceHeader,
	}, true
}

func (r *Resolver) fromIP(req *http.Request) (snapshot.Geo, bool) {
	if r.ipdb == nil {
		return snapshot.Geo{}, false
	}

	ip := clientIP(req)
	if ip == nil {
		return snapshot.Geo{}, false
	}

	rec, err := r.ipdb.City(ip)

	if err != nil || rec == nil || rec.Country.IsoCode == "" {
		return snapshot.Geo{}, false
	}

	g := snapshot.Geo{
		Country: rec.Country.IsoCode,
		City:    rec.City.Names["en"],
		Lat:     rec.Location.Latitude,
		Lon:     rec.Location.Longitude,
		Source:  snapshot.GeoSourceIP,
	}

	if len(rec.Subdivisions) > 0 {
		g.Region = rec.Subdivisions[0].IsoCode
	}

	return g, true
}

// clientIP prefers the first X-Forwarded-For hop, then the direct peer.
func clientIP(req *http.Request) net.IP {
	if fwd := req.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")

		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)

	if err != nil {
		host = req.RemoteAddr
	}

	return net.ParseIP(host)
}
