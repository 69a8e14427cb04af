package sos

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sensorbridge/sensorbridge-engine/pkg/models"
)

// The decode layer unmarshals the subset of the protocol's XML the
// connectors actually consume. Element matching is by local name, so
// the usual namespace prefix variations across server implementations
// do not matter.

type xmlCapabilities struct {
	Version         string `xml:"version,attr"`
	Identification  struct {
		Title    string `xml:"Title"`
		Abstract string `xml:"Abstract"`
	} `xml:"ServiceIdentification"`
	Provider struct {
		Name string `xml:"ProviderName"`
		Site struct {
			Href string `xml:"href,attr"`
		} `xml:"ProviderSite"`
	} `xml:"ServiceProvider"`
	Contents struct {
		Offerings []struct {
			Offering xmlObservationOffering `xml:"ObservationOffering"`
		} `xml:"Contents>offering"`
	} `xml:"contents"`
}

type xmlObservationOffering struct {
	Identifier           string   `xml:"identifier"`
	Name                 string   `xml:"name"`
	Procedure            []string `xml:"procedure"`
	ObservableProperties []string `xml:"observableProperty"`
	RelatedFeatures      []struct {
		Target struct {
			Href string `xml:"href,attr"`
		} `xml:"FeatureRelationship>target"`
		Role string `xml:"FeatureRelationship>role"`
	} `xml:"relatedFeature"`
	PhenomenonTime *xmlTimePeriod `xml:"phenomenonTime>TimePeriod"`
	ResultTime     *xmlTimePeriod `xml:"resultTime>TimePeriod"`
}

type xmlTimePeriod struct {
	Begin string `xml:"beginPosition"`
	End   string `xml:"endPosition"`
}

func decodeCapabilities(body []byte) (*Capabilities, error) {
	var raw xmlCapabilities
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed capabilities document: %w", err)
	}

	caps := &Capabilities{
		Version:  raw.Version,
		Title:    raw.Identification.Title,
		Abstract: raw.Identification.Abstract,
		Provider: ServiceProvider{
			Name: raw.Provider.Name,
			Site: raw.Provider.Site.Href,
		},
	}

	for _, member := range raw.Contents.Offerings {
		off := member.Offering
		offering := ObservationOffering{
			ID:                   off.Identifier,
			Name:                 off.Name,
			Procedures:           off.Procedure,
			ObservableProperties: off.ObservableProperties,
		}
		for _, rf := range off.RelatedFeatures {
			if rf.Target.Href == "" {
				continue
			}
			offering.RelatedFeatures = append(offering.RelatedFeatures, FeatureRelationship{
				Target: rf.Target.Href,
				Role:   rf.Role,
			})
		}
		if offering.Name == "" {
			offering.Name = off.Identifier
		}
		if off.PhenomenonTime != nil {
			offering.PhenomenonTimeStart = parseTimePtr(off.PhenomenonTime.Begin)
			offering.PhenomenonTimeEnd = parseTimePtr(off.PhenomenonTime.End)
		}
		if off.ResultTime != nil {
			offering.ResultTimeStart = parseTimePtr(off.ResultTime.Begin)
			offering.ResultTimeEnd = parseTimePtr(off.ResultTime.End)
		}
		caps.Contents = append(caps.Contents, offering)
	}

	return caps, nil
}

type xmlObservationResponse struct {
	Observations []xmlObservation `xml:"observationData>OM_Observation"`
}

type xmlObservation struct {
	Procedure struct {
		Href string `xml:"href,attr"`
	} `xml:"procedure"`
	ObservedProperty struct {
		Href string `xml:"href,attr"`
	} `xml:"observedProperty"`
	Feature struct {
		Href string `xml:"href,attr"`
	} `xml:"featureOfInterest"`
	PhenomenonTime struct {
		Instant struct {
			Position string `xml:"timePosition"`
		} `xml:"TimeInstant"`
	} `xml:"phenomenonTime"`
	Result struct {
		UOM   string `xml:"uom,attr"`
		Value string `xml:",chardata"`
	} `xml:"result"`
	Parameters []struct {
		NamedValue struct {
			Name struct {
				Href string `xml:"href,attr"`
			} `xml:"name"`
			Point *struct {
				Pos string `xml:"pos"`
			} `xml:"value>Point"`
		} `xml:"NamedValue"`
	} `xml:"parameter"`
}

func decodeObservations(body []byte) ([]Observation, error) {
	var raw xmlObservationResponse
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed observation document: %w", err)
	}

	observations := make([]Observation, 0, len(raw.Observations))
	for _, o := range raw.Observations {
		obs := Observation{
			Procedure:         o.Procedure.Href,
			ObservedProperty:  o.ObservedProperty.Href,
			FeatureOfInterest: o.Feature.Href,
			UOM:               o.Result.UOM,
		}

		ts, err := parseTime(o.PhenomenonTime.Instant.Position)
		if err != nil {
			return nil, fmt.Errorf("malformed observation phenomenon time: %w", err)
		}
		obs.PhenomenonTime = ts

		value := strings.TrimSpace(o.Result.Value)
		if num, err := strconv.ParseFloat(value, 64); err == nil {
			obs.Numeric = &num
		} else {
			obs.Text = value
		}

		for _, p := range o.Parameters {
			param := NamedParameter{Name: p.NamedValue.Name.Href}
			if p.NamedValue.Point != nil {
				param.Geometry = parsePos(p.NamedValue.Point.Pos)
			}
			obs.Parameters = append(obs.Parameters, param)
		}

		observations = append(observations, obs)
	}

	return observations, nil
}

type xmlAvailabilityResponse struct {
	Members []struct {
		Procedure        xmlRef         `xml:"procedure"`
		Offering         xmlRef         `xml:"offering"`
		ObservedProperty xmlRef         `xml:"observedProperty"`
		Feature          xmlRef         `xml:"featureOfInterest"`
		PhenomenonTime   *xmlTimePeriod `xml:"phenomenonTime>TimePeriod"`
	} `xml:"dataAvailabilityMember>DataAvailability"`
}

type xmlRef struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
}

func decodeDataAvailability(body []byte) ([]DataAvailability, error) {
	var raw xmlAvailabilityResponse
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed data availability document: %w", err)
	}

	availabilities := make([]DataAvailability, 0, len(raw.Members))
	for _, m := range raw.Members {
		da := DataAvailability{
			Procedure:         Ref{Href: m.Procedure.Href, Title: m.Procedure.Title},
			Offering:          Ref{Href: m.Offering.Href, Title: m.Offering.Title},
			ObservedProperty:  Ref{Href: m.ObservedProperty.Href, Title: m.ObservedProperty.Title},
			FeatureOfInterest: Ref{Href: m.Feature.Href, Title: m.Feature.Title},
		}
		if m.PhenomenonTime != nil {
			if t := parseTimePtr(m.PhenomenonTime.Begin); t != nil {
				da.PhenomenonTimeStart = *t
			}
			if t := parseTimePtr(m.PhenomenonTime.End); t != nil {
				da.PhenomenonTimeEnd = *t
			}
		}
		availabilities = append(availabilities, da)
	}

	return availabilities, nil
}

type xmlFeatureResponse struct {
	Members []struct {
		Identifier string `xml:"SF_SpatialSamplingFeature>identifier"`
		Name       string `xml:"SF_SpatialSamplingFeature>name"`
		Pos        string `xml:"SF_SpatialSamplingFeature>shape>Point>pos"`
	} `xml:"featureMember"`
}

func decodeFeaturesOfInterest(body []byte) ([]FeatureOfInterest, error) {
	var raw xmlFeatureResponse
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("malformed feature document: %w", err)
	}

	features := make([]FeatureOfInterest, 0, len(raw.Members))
	for _, m := range raw.Members {
		name := m.Name
		if name == "" {
			name = m.Identifier
		}
		features = append(features, FeatureOfInterest{
			ID:       m.Identifier,
			Name:     name,
			Geometry: parsePos(m.Pos),
		})
	}

	return features, nil
}

// parsePos reads a "lat lon [alt]" position string.
func parsePos(pos string) *models.Geometry {
	fields := strings.Fields(pos)
	if len(fields) < 2 {
		return nil
	}
	lat, err1 := strconv.ParseFloat(fields[0], 64)
	lon, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	geom := &models.Geometry{Latitude: lat, Longitude: lon}
	if len(fields) > 2 {
		if alt, err := strconv.ParseFloat(fields[2], 64); err == nil {
			geom.Altitude = alt
		}
	}
	return geom
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

func parseTimePtr(value string) *time.Time {
	t, err := parseTime(value)
	if err != nil {
		return nil
	}
	return &t
}
