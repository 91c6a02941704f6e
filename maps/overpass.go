package maps

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/serjvanilla/go-overpass"
)

const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// osmTags maps Places API types to OSM tag filters.
var osmTags = map[string][]string{
	"school":          {`["amenity"="school"]`},
	"grocery_store":   {`["shop"="supermarket"]`, `["shop"="grocery"]`},
	"hospital":        {`["amenity"="hospital"]`, `["amenity"="clinic"]`},
	"park":            {`["leisure"="park"]`},
	"restaurant":      {`["amenity"="restaurant"]`},
	"transit_station": {`["public_transport"="station"]`, `["railway"="station"]`},
	"shopping_mall":   {`["shop"="mall"]`},
}

// OverpassClient answers nearby-place searches from OpenStreetMap.
type OverpassClient struct {
	client   *overpass.Client
	observer Observer
}

func NewOverpassClient(endpoint string, timeout time.Duration, observer Observer) *OverpassClient {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := overpass.NewWithSettings(endpoint, 2, &http.Client{Timeout: timeout})
	return &OverpassClient{client: &client, observer: observer}
}

func OSMFilters(placeType string) []string {
	if f, ok := osmTags[placeType]; ok {
		return f
	}
	return []string{fmt.Sprintf(`["amenity"=%q]`, placeType)}
}

func OverpassQuery(q NearbyQuery) string {
	around := fmt.Sprintf("(around:%.0f,%.6f,%.6f)", q.Radius, q.Latitude, q.Longitude)
	var b strings.Builder
	b.WriteString("[out:json];\n(\n")
	for _, f := range OSMFilters(q.Type) {
		fmt.Fprintf(&b, "  node%s%s;\n  way%s%s;\n", f, around, f, around)
	}
	b.WriteString(");\nout body;\n>;\nout skel qt;")
	return b.String()
}

func (o *OverpassClient) SearchNearby(ctx context.Context, q NearbyQuery) ([]Place, error) {
	start := time.Now()
	places, err := o.search(ctx, q)
	if o.observer != nil {
		o.observer.ObserveUpstream("overpass", "places", Outcome(err), time.Since(start))
	}
	return places, err
}

func (o *OverpassClient) search(ctx context.Context, q NearbyQuery) ([]Place, error) {
	type queryResult struct {
		res overpass.Result
		err error
	}
	done := make(chan queryResult, 1)
	go func() {
		res, err := o.client.Query(OverpassQuery(q))
		done <- queryResult{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", r.err)
		}
		return convertOverpass(&r.res, q.Type), nil
	}
}

func convertOverpass(res *overpass.Result, placeType string) []Place {
	places := make([]Place, 0, len(res.Nodes))

	nodeIDs := make([]int64, 0, len(res.Nodes))
	for id, n := range res.Nodes {
		if n != nil && n.Tags["name"] != "" {
			nodeIDs = append(nodeIDs, id)
		}
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	for _, id := range nodeIDs {
		n := res.Nodes[id]
		places = append(places, osmPlace(n.Tags, n.Lat, n.Lon, placeType))
	}

	wayIDs := make([]int64, 0, len(res.Ways))
	for id, w := range res.Ways {
		if w != nil && w.Tags["name"] != "" {
			wayIDs = append(wayIDs, id)
		}
	}
	sort.Slice(wayIDs, func(i, j int) bool { return wayIDs[i] < wayIDs[j] })
	for _, id := range wayIDs {
		w := res.Ways[id]
		var lat, lon float64
		var count int
		for _, n := range w.Nodes {
			if n == nil {
				continue
			}
			lat += n.Lat
			lon += n.Lon
			count++
		}
		if count == 0 {
			continue
		}
		places = append(places, osmPlace(w.Tags, lat/float64(count), lon/float64(count), placeType))
	}
	return places
}

func osmPlace(tags map[string]string, lat, lon float64, placeType string) Place {
	return Place{
		DisplayName:      &LocalizedText{Text: tags["name"]},
		Location:         &PlaceLocation{Latitude: lat, Longitude: lon},
		FormattedAddress: osmAddress(tags),
		Types:            []string{placeType},
	}
}

func osmAddress(tags map[string]string) string {
	street := strings.TrimSpace(tags["addr:housenumber"] + " " + tags["addr:street"])
	parts := make([]string, 0, 3)
	for _, p := range []string{street, tags["addr:city"], tags["addr:postcode"]} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
