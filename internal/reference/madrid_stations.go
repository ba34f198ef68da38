package reference

import "geoingest/internal/transformer"

// MadridStations are the air quality monitoring stations of the Madrid city
// network, keyed by their eight-digit station code.
var MadridStations = Table{
	"28079004": {Name: "Pza. de España", Location: transformer.NewGeoPoint(-3.712247222222224, 40.423852777777775)},
	"28079008": {Name: "Escuelas Aguirre", Location: transformer.NewGeoPoint(-3.682319444444445, 40.42156388888888)},
	"28079011": {Name: "Avda. Ramón y Cajal", Location: transformer.NewGeoPoint(-3.6773555555555553, 40.451475)},
	"28079016": {Name: "Arturo Soria", Location: transformer.NewGeoPoint(-3.6392333333333333, 40.44004722222222)},
	"28079017": {Name: "Villaverde", Location: transformer.NewGeoPoint(-3.713322222222221, 40.347138888888885)},
	"28079018": {Name: "Farolillo", Location: transformer.NewGeoPoint(-3.7318527777777777, 40.39478055555556)},
	"28079024": {Name: "Casa de Campo", Location: transformer.NewGeoPoint(-3.7473472222222224, 40.41935555555556)},
	"28079027": {Name: "Barajas Pueblo", Location: transformer.NewGeoPoint(-3.580030555555555, 40.47692777777778)},
	"28079035": {Name: "Pza. del Carmen", Location: transformer.NewGeoPoint(-3.7031722222222223, 40.41920833333333)},
	"28079036": {Name: "Moratalaz", Location: transformer.NewGeoPoint(-3.6453055555555554, 40.40794722222222)},
	"28079038": {Name: "Cuatro Caminos", Location: transformer.NewGeoPoint(-3.7071277777777785, 40.44554444444445)},
	"28079039": {Name: "Barrio del Pilar", Location: transformer.NewGeoPoint(-3.7115416666666654, 40.47822777777778)},
	"28079040": {Name: "Vallecas", Location: transformer.NewGeoPoint(-3.6515222222222223, 40.38815277777777)},
	"28079047": {Name: "Mendez Alvaro", Location: transformer.NewGeoPoint(-3.686825, 40.398113888888886)},
	"28079048": {Name: "Castellana", Location: transformer.NewGeoPoint(-3.690366666666667, 40.43989722222222)},
	"28079049": {Name: "Parque del Retiro", Location: transformer.NewGeoPoint(-3.682583333333333, 40.414444444444435)},
	"28079050": {Name: "Plaza Castilla", Location: transformer.NewGeoPoint(-3.688769444444445, 40.46557222222223)},
	"28079054": {Name: "Ensanche de Vallecas", Location: transformer.NewGeoPoint(-3.612116666666666, 40.372933333333336)},
	"28079055": {Name: "Urb. Embajada", Location: transformer.NewGeoPoint(-3.5807472222222216, 40.46253055555556)},
	"28079056": {Name: "Pza. Fernández Ladreda", Location: transformer.NewGeoPoint(-3.7187277777777785, 40.38496388888889)},
	"28079057": {Name: "Sanchinarro", Location: transformer.NewGeoPoint(-3.6605027777777774, 40.49420833333333)},
	"28079058": {Name: "El Pardo", Location: transformer.NewGeoPoint(-3.774611111111111, 40.51805833333333)},
	"28079059": {Name: "Juan Carlos I", Location: transformer.NewGeoPoint(-3.6090722222222222, 40.46525000000001)},
	"28079060": {Name: "Tres Olivos", Location: transformer.NewGeoPoint(-3.6897611111111113, 40.50058888888889)},
}
