package listing

// translations maps the site's Croatian detail-page labels to canonical
// fields. Labels missing from this table are dropped by the extractor
// with a warning; they must never break extraction of known fields.
var translations = map[string]Field{
	"Lokacija vozila":               FieldLocation,
	"Marka automobila":              FieldMake,
	"Model automobila":              FieldModel,
	"Tip automobila":                FieldType,
	"Broj šasije":                   FieldChassisNumber,
	"Godina proizvodnje":            FieldManufactureYear,
	"Godina modela":                 FieldModelYear,
	"Prijeđeni kilometri":           FieldMileage,
	"Motor":                         FieldEngine,
	"Snaga motora":                  FieldPower,
	"Radni obujam":                  FieldDisplacement,
	"Mjenjač":                       FieldTransmission,
	"Stanje":                        FieldCondition,
	"Vlasnik":                       FieldOwner,
	"Servisna knjižica":             FieldServiceBook,
	"Garažiran":                     FieldGaraged,
	"U prometu od":                  FieldInTrafficSince,
	"Prva registracija u Hrvatskoj": FieldFirstRegistrationInCroatia,
	"Registriran do":                FieldRegisteredUntil,
	"Prosječna potrošnja goriva":    FieldFuelConsumption,
	"Eko kategorija vozila":         FieldEcoCategory,
	"Broj stupnjeva":                FieldNumberOfGears,
	"Jamstvo":                       FieldWarranty,
	"Prosječna emisija CO2":         FieldAverageCO2Emission,
	"Razgledavanje video pozivom":   FieldVideoCallViewing,
	"Plin":                          FieldGas,
	"Jamstvo auto kuće":             FieldAutoWarranty,
	"Broj vrata":                    FieldNumberOfDoors,
	"Oblik karoserije":              FieldChassisType,
	"Broj sjedala":                  FieldNumberOfSeats,
	"Pogon":                         FieldDriveType,
	"Boja vozila":                   FieldColor,
	"Metalik boja":                  FieldMetalicColor,
	"Ovjes":                         FieldSuspension,
	"Veličina guma":                 FieldTireSize,
	"Interna oznaka":                FieldInternalCode,
}

// Translate resolves a page label to its canonical field. The second
// return reports whether the label is known; callers log-and-drop
// unknown labels rather than treating them as errors.
func Translate(label string) (Field, bool) {
	f, ok := translations[label]
	return f, ok
}
