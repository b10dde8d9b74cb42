package importpipeline

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"runcore/internal/trace"
)

// parseGPX streams trkpt elements out of a GPX document in document order
// (spec §4.3 step 2: "GPX uses track-segment-point order"). A hand-rolled
// token-by-token decoder is used rather than unmarshaling into a struct
// tree, so a file with many thousands of points never materializes as one
// in-memory DOM.
func parseGPX(data []byte) ([]trace.Point, error) {
	if bytes.Contains(data, []byte("<!DOCTYPE")) || bytes.Contains(data, []byte("<!ENTITY")) {
		return nil, fmt.Errorf("gpx: external DTD/entity declarations are not allowed")
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var points []trace.Point
	var cur *trace.Point
	var inEle, inTime bool
	var textBuf bytes.Buffer

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gpx: parse token: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "trkpt":
				lat, lng, ok := trkptCoords(t)
				if !ok {
					cur = nil
					continue
				}
				if !validCoordinate(lat, lng) {
					return nil, fmt.Errorf("gpx: point (%f, %f) out of WGS84 range", lat, lng)
				}
				cur = &trace.Point{Lat: lat, Lng: lng}
			case "ele":
				inEle = cur != nil
				textBuf.Reset()
			case "time":
				inTime = cur != nil
				textBuf.Reset()
			}
		case xml.CharData:
			if inEle || inTime {
				textBuf.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "ele":
				if inEle {
					if v, err := strconv.ParseFloat(textBuf.String(), 64); err == nil {
						cur.Alt = v
					}
				}
				inEle = false
			case "time":
				if inTime {
					if ts, err := time.Parse(time.RFC3339, textBuf.String()); err == nil {
						cur.Timestamp = ts
					}
				}
				inTime = false
			case "trkpt":
				if cur != nil {
					points = append(points, *cur)
					cur = nil
				}
			}
		}
	}

	return points, nil
}

func trkptCoords(t xml.StartElement) (lat, lng float64, ok bool) {
	var latOK, lngOK bool
	for _, attr := range t.Attr {
		switch attr.Name.Local {
		case "lat":
			if v, err := strconv.ParseFloat(attr.Value, 64); err == nil {
				lat, latOK = v, true
			}
		case "lon":
			if v, err := strconv.ParseFloat(attr.Value, 64); err == nil {
				lng, lngOK = v, true
			}
		}
	}
	return lat, lng, latOK && lngOK
}

func validCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
