package sos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capabilitiesDoc = `<?xml version="1.0" encoding="UTF-8"?>
<sos:Capabilities version="2.0.0"
    xmlns:sos="http://www.opengis.net/sos/2.0"
    xmlns:ows="http://www.opengis.net/ows/1.1"
    xmlns:swes="http://www.opengis.net/swes/2.0"
    xmlns:gml="http://www.opengis.net/gml/3.2"
    xmlns:xlink="http://www.w3.org/1999/xlink">
  <ows:ServiceIdentification>
    <ows:Title>Coastal Observatory SOS</ows:Title>
    <ows:Abstract>Tide and weather series</ows:Abstract>
  </ows:ServiceIdentification>
  <ows:ServiceProvider>
    <ows:ProviderName>52North</ows:ProviderName>
    <ows:ProviderSite xlink:href="http://52north.org"/>
  </ows:ServiceProvider>
  <sos:contents>
    <sos:Contents>
      <swes:offering>
        <sos:ObservationOffering>
          <swes:identifier>offering/tide-gauge</swes:identifier>
          <swes:name>Tide Gauge</swes:name>
          <swes:procedure>procedure/tide-sensor</swes:procedure>
          <swes:observableProperty>waterlevel</swes:observableProperty>
          <sos:relatedFeature>
            <swes:FeatureRelationship>
              <swes:role>http://www.opengis.net/def/nil/OGC/0/unknown</swes:role>
              <swes:target xlink:href="feature/harbour-basin"/>
            </swes:FeatureRelationship>
          </sos:relatedFeature>
          <sos:phenomenonTime>
            <gml:TimePeriod gml:id="tp_1">
              <gml:beginPosition>2019-01-01T00:00:00Z</gml:beginPosition>
              <gml:endPosition>2020-01-01T00:00:00Z</gml:endPosition>
            </gml:TimePeriod>
          </sos:phenomenonTime>
        </sos:ObservationOffering>
      </swes:offering>
      <swes:offering>
        <sos:ObservationOffering>
          <swes:identifier>offering/weather</swes:identifier>
          <swes:procedure>procedure/weather-station</swes:procedure>
          <swes:observableProperty>airtemp</swes:observableProperty>
          <swes:observableProperty>humidity</swes:observableProperty>
        </sos:ObservationOffering>
      </swes:offering>
    </sos:Contents>
  </sos:contents>
</sos:Capabilities>`

func TestDecodeCapabilities(t *testing.T) {
	caps, err := decodeCapabilities([]byte(capabilitiesDoc))
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", caps.Version)
	assert.Equal(t, "Coastal Observatory SOS", caps.Title)
	assert.Equal(t, "52North", caps.Provider.Name)
	require.Len(t, caps.Contents, 2)

	tide := caps.Contents[0]
	assert.Equal(t, "offering/tide-gauge", tide.ID)
	assert.Equal(t, "Tide Gauge", tide.Name)
	assert.Equal(t, []string{"procedure/tide-sensor"}, tide.Procedures)
	assert.Equal(t, []string{"waterlevel"}, tide.ObservableProperties)
	require.Len(t, tide.RelatedFeatures, 1)
	assert.Equal(t, "feature/harbour-basin", tide.RelatedFeatures[0].Target)
	assert.Equal(t, "http://www.opengis.net/def/nil/OGC/0/unknown", tide.RelatedFeatures[0].Role)
	require.NotNil(t, tide.PhenomenonTimeStart)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), tide.PhenomenonTimeStart.UTC())

	weather := caps.Contents[1]
	assert.Equal(t, "offering/weather", weather.Name) // falls back to identifier
	assert.Len(t, weather.ObservableProperties, 2)
	assert.Nil(t, weather.PhenomenonTimeStart)
}

const observationDoc = `<?xml version="1.0" encoding="UTF-8"?>
<sos:GetObservationResponse
    xmlns:sos="http://www.opengis.net/sos/2.0"
    xmlns:om="http://www.opengis.net/om/2.0"
    xmlns:gml="http://www.opengis.net/gml/3.2"
    xmlns:xlink="http://www.w3.org/1999/xlink">
  <sos:observationData>
    <om:OM_Observation gml:id="o_1">
      <om:phenomenonTime>
        <gml:TimeInstant gml:id="ti_1">
          <gml:timePosition>2020-06-01T12:00:00Z</gml:timePosition>
        </gml:TimeInstant>
      </om:phenomenonTime>
      <om:procedure xlink:href="procedure/tide-sensor"/>
      <om:observedProperty xlink:href="waterlevel"/>
      <om:featureOfInterest xlink:href="station/pier-1"/>
      <om:result uom="m">0.82</om:result>
    </om:OM_Observation>
  </sos:observationData>
  <sos:observationData>
    <om:OM_Observation gml:id="o_2">
      <om:phenomenonTime>
        <gml:TimeInstant gml:id="ti_2">
          <gml:timePosition>2020-06-01T12:10:00Z</gml:timePosition>
        </gml:TimeInstant>
      </om:phenomenonTime>
      <om:procedure xlink:href="procedure/vessel"/>
      <om:observedProperty xlink:href="salinity"/>
      <om:featureOfInterest xlink:href="track/cruise-7"/>
      <om:result uom="psu">35.1</om:result>
      <om:parameter>
        <om:NamedValue>
          <om:name xlink:href="http://www.opengis.net/def/param-name/OGC-OM/2.0/samplingGeometry"/>
          <om:value>
            <gml:Point gml:id="pt_2">
              <gml:pos>54.32 10.14 1.5</gml:pos>
            </gml:Point>
          </om:value>
        </om:NamedValue>
      </om:parameter>
    </om:OM_Observation>
  </sos:observationData>
</sos:GetObservationResponse>`

func TestDecodeObservations(t *testing.T) {
	obs, err := decodeObservations([]byte(observationDoc))
	require.NoError(t, err)
	require.Len(t, obs, 2)

	first := obs[0]
	assert.Equal(t, "procedure/tide-sensor", first.Procedure)
	assert.Equal(t, "m", first.UOM)
	require.NotNil(t, first.Numeric)
	assert.Equal(t, 0.82, *first.Numeric)
	assert.Empty(t, first.Parameters)

	second := obs[1]
	require.Len(t, second.Parameters, 1)
	param := second.Parameters[0]
	assert.Equal(t, SamplingGeometryParameter, param.Name)
	require.NotNil(t, param.Geometry)
	assert.Equal(t, 54.32, param.Geometry.Latitude)
	assert.Equal(t, 10.14, param.Geometry.Longitude)
	assert.Equal(t, 1.5, param.Geometry.Altitude)
}

func TestDecodeObservations_TextResult(t *testing.T) {
	doc := `<GetObservationResponse>
  <observationData>
    <OM_Observation>
      <phenomenonTime><TimeInstant><timePosition>2020-06-01T12:00:00Z</timePosition></TimeInstant></phenomenonTime>
      <result>calm sea</result>
    </OM_Observation>
  </observationData>
</GetObservationResponse>`

	obs, err := decodeObservations([]byte(doc))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Nil(t, obs[0].Numeric)
	assert.Equal(t, "calm sea", obs[0].Text)
}

func TestDecodeObservations_Malformed(t *testing.T) {
	_, err := decodeObservations([]byte("<unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

const availabilityDoc = `<?xml version="1.0" encoding="UTF-8"?>
<gda:GetDataAvailabilityResponse
    xmlns:gda="http://www.opengis.net/sosgda/2.0"
    xmlns:gml="http://www.opengis.net/gml/3.2"
    xmlns:xlink="http://www.w3.org/1999/xlink">
  <gda:dataAvailabilityMember>
    <gda:DataAvailability gml:id="dam_1">
      <gda:procedure xlink:href="procedure/vessel" xlink:title="Research Vessel"/>
      <gda:offering xlink:href="offering/cruise-7" xlink:title="Cruise 7"/>
      <gda:observedProperty xlink:href="salinity" xlink:title="Salinity"/>
      <gda:featureOfInterest xlink:href="track/cruise-7" xlink:title="Cruise 7 Track"/>
      <gda:phenomenonTime>
        <gml:TimePeriod gml:id="tp_dam_1">
          <gml:beginPosition>2020-05-01T00:00:00Z</gml:beginPosition>
          <gml:endPosition>2020-06-01T00:00:00Z</gml:endPosition>
        </gml:TimePeriod>
      </gda:phenomenonTime>
    </gda:DataAvailability>
  </gda:dataAvailabilityMember>
</gda:GetDataAvailabilityResponse>`

func TestDecodeDataAvailability(t *testing.T) {
	avail, err := decodeDataAvailability([]byte(availabilityDoc))
	require.NoError(t, err)
	require.Len(t, avail, 1)

	da := avail[0]
	assert.Equal(t, "procedure/vessel", da.Procedure.Href)
	assert.Equal(t, "Research Vessel", da.Procedure.Title)
	assert.Equal(t, "track/cruise-7", da.FeatureOfInterest.Href)
	assert.Equal(t, time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC), da.PhenomenonTimeStart.UTC())
}

const featureDoc = `<?xml version="1.0" encoding="UTF-8"?>
<sos:GetFeatureOfInterestResponse
    xmlns:sos="http://www.opengis.net/sos/2.0"
    xmlns:sams="http://www.opengis.net/samplingSpatial/2.0"
    xmlns:gml="http://www.opengis.net/gml/3.2">
  <sos:featureMember>
    <sams:SF_SpatialSamplingFeature gml:id="f_1">
      <gml:identifier codeSpace="uniquID">station/pier-1</gml:identifier>
      <gml:name>Pier 1</gml:name>
      <sams:shape>
        <gml:Point gml:id="pt_f1">
          <gml:pos>54.5 9.9</gml:pos>
        </gml:Point>
      </sams:shape>
    </sams:SF_SpatialSamplingFeature>
  </sos:featureMember>
</sos:GetFeatureOfInterestResponse>`

func TestDecodeFeaturesOfInterest(t *testing.T) {
	features, err := decodeFeaturesOfInterest([]byte(featureDoc))
	require.NoError(t, err)
	require.Len(t, features, 1)

	f := features[0]
	assert.Equal(t, "station/pier-1", f.ID)
	assert.Equal(t, "Pier 1", f.Name)
	require.NotNil(t, f.Geometry)
	assert.Equal(t, 54.5, f.Geometry.Latitude)
	assert.Equal(t, 9.9, f.Geometry.Longitude)
	assert.Zero(t, f.Geometry.Altitude)
}
