package dataset

import (
	"geoingest/internal/config"
	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

// Pollutant columns of the Madrid hourly export, in file order.
var madridPollutants = []string{
	"BEN", "CH4", "CO", "EBE", "NMHC", "NO", "NO_2", "NOx",
	"O_3", "PM10", "PM25", "SO_2", "TCH", "TOL",
}

func init() {
	register(airQualityMadrid())
	register(dansMaRue())
}

func airQualityMadrid() Preset {
	fields := []transformer.FieldRule{
		{Target: "@timestamp", Source: "date", Kind: transformer.KindTimestamp, Required: true},
	}
	mappings := []storage.FieldMapping{
		{Name: "@timestamp", Type: storage.TypeDate, Format: "yyyy-MM-dd HH:mm:ss"},
		{Name: "station", Type: storage.TypeKeyword},
		{Name: "location", Type: storage.TypeGeoPoint},
	}
	for _, p := range madridPollutants {
		fields = append(fields, transformer.FieldRule{Target: p, Source: p, Kind: transformer.KindFloat})
		mappings = append(mappings, storage.FieldMapping{Name: p, Type: storage.TypeFloat})
	}

	return Preset{
		Name:          "air-quality-madrid",
		Description:   "Madrid hourly air quality, one CSV per year",
		Pattern:       "*.csv",
		ParserOptions: config.Options{"comma": ","},
		Fields:        fields,
		Lookup: &transformer.LookupRule{
			Table:          "madrid-stations",
			Key:            "station",
			NameTarget:     "station",
			LocationTarget: "location",
			OnMissing:      transformer.OnMissingSkip,
		},
		Index: storage.IndexSpec{
			Name:     "airquality-madrid",
			Shards:   1,
			Replicas: 0,
			Fields:   mappings,
		},
	}
}

func dansMaRue() Preset {
	str := func(target, source string) transformer.FieldRule {
		return transformer.FieldRule{Target: target, Source: source, Kind: transformer.KindString}
	}
	return Preset{
		Name:          "dans-ma-rue",
		Description:   "Paris DansMaRue public space anomaly reports",
		Pattern:       "*.csv",
		ParserOptions: config.Options{"comma": ";"},
		Fields: []transformer.FieldRule{
			{Target: "@timestamp", Source: "DATEDECL", Kind: transformer.KindTimestamp, Required: true},
			str("year", "ANNEE DECLARATION"),
			str("month", "MOIS DECLARATION"),
			{Target: "number", Source: "NUMERO", Kind: transformer.KindRounded},
			str("type", "TYPE"),
			str("subtype", "SOUSTYPE"),
			str("address", "ADRESSE"),
			str("zipCode", "CODE_POSTAL"),
			{Target: "district", Source: "ARRONDISSEMENT", Kind: transformer.KindRounded},
			str("city", "VILLE"),
			str("prefix", "PREFIXE"),
			{Target: "objectId", Source: "OBJECTID", Kind: transformer.KindInt},
			str("provider", "INTERVENANT"),
			str("neighborhoodCouncil", "CONSEIL DE QUARTIER"),
			{Target: "location", Source: "geo_point_2d", Kind: transformer.KindGeoPoint, Order: transformer.OrderLatLon},
		},
		Index: storage.IndexSpec{
			Name:     "dansmarue",
			Shards:   1,
			Replicas: 0,
			Fields: []storage.FieldMapping{
				{Name: "@timestamp", Type: storage.TypeDate},
				{Name: "year", Type: storage.TypeKeyword},
				{Name: "month", Type: storage.TypeKeyword},
				{Name: "number", Type: storage.TypeLong},
				{Name: "type", Type: storage.TypeKeyword},
				{Name: "subtype", Type: storage.TypeKeyword},
				{Name: "address", Type: storage.TypeText},
				{Name: "zipCode", Type: storage.TypeKeyword},
				{Name: "district", Type: storage.TypeLong},
				{Name: "city", Type: storage.TypeKeyword},
				{Name: "prefix", Type: storage.TypeKeyword},
				{Name: "objectId", Type: storage.TypeLong},
				{Name: "provider", Type: storage.TypeKeyword},
				{Name: "neighborhoodCouncil", Type: storage.TypeKeyword},
				{Name: "location", Type: storage.TypeGeoPoint},
			},
		},
	}
}
