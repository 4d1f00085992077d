// Package listing defines the normalized vehicle-ad model and the
// coercions that turn raw on-page text into it.
package listing

import "time"

// Field is a canonical column name for a vehicle ad attribute.
type Field string

// Canonical fields. The names double as database column names.
const (
	FieldURL                        Field = "url"
	FieldTitle                      Field = "title"
	FieldDateCreated                Field = "date_created"
	FieldAdExpires                  Field = "ad_expires"
	FieldPrice                      Field = "price"
	FieldLocation                   Field = "location"
	FieldMake                       Field = "make"
	FieldModel                      Field = "model"
	FieldType                       Field = "type"
	FieldChassisNumber              Field = "chassis_number"
	FieldManufactureYear            Field = "manufacture_year"
	FieldModelYear                  Field = "model_year"
	FieldMileage                    Field = "mileage"
	FieldEngine                     Field = "engine"
	FieldPower                      Field = "power"
	FieldDisplacement               Field = "displacement"
	FieldTransmission               Field = "transmission"
	FieldCondition                  Field = "condition"
	FieldOwner                      Field = "owner"
	FieldServiceBook                Field = "service_book"
	FieldGaraged                    Field = "garaged"
	FieldInTrafficSince             Field = "in_traffic_since"
	FieldFirstRegistrationInCroatia Field = "first_registration_in_croatia"
	FieldRegisteredUntil            Field = "registered_until"
	FieldFuelConsumption            Field = "fuel_consumption"
	FieldEcoCategory                Field = "eco_category"
	FieldNumberOfGears              Field = "number_of_gears"
	FieldWarranty                   Field = "warranty"
	FieldAverageCO2Emission         Field = "average_co2_emission"
	FieldVideoCallViewing           Field = "video_call_viewing"
	FieldGas                        Field = "gas"
	FieldAutoWarranty               Field = "auto_warranty"
	FieldNumberOfDoors              Field = "number_of_doors"
	FieldChassisType                Field = "chassis_type"
	FieldNumberOfSeats              Field = "number_of_seats"
	FieldDriveType                  Field = "drive_type"
	FieldColor                      Field = "color"
	FieldMetalicColor               Field = "metalic_color"
	FieldSuspension                 Field = "suspension"
	FieldTireSize                   Field = "tire_size"
	FieldInternalCode               Field = "internal_code"
)

// RawFields holds label/value pairs after label translation but before
// any type coercion. Values are the page text verbatim.
type RawFields map[Field]string

// Listing is one normalized vehicle ad, identified by its source URL.
// Fields carries the coerced attribute values; a value that failed its
// coercion stays a string.
type Listing struct {
	URL         string
	Title       string
	DateCreated time.Time
	// AdExpires is the absolute expiry resolved from the remaining-duration
	// string. Zero means "until sold"; the orchestrator substitutes a
	// default horizon at save time.
	AdExpires time.Time
	Fields    map[Field]any
}

// InsertableFields lists the attribute columns the persistence layer may
// write, in a stable order. URL and the derived timestamps are handled
// separately by the adapter.
func InsertableFields() []Field {
	return []Field{
		FieldTitle, FieldPrice, FieldLocation, FieldMake, FieldModel,
		FieldType, FieldChassisNumber, FieldManufactureYear, FieldModelYear,
		FieldMileage, FieldEngine, FieldPower, FieldDisplacement,
		FieldTransmission, FieldCondition, FieldOwner, FieldServiceBook,
		FieldGaraged, FieldInTrafficSince, FieldFirstRegistrationInCroatia,
		FieldRegisteredUntil, FieldFuelConsumption, FieldEcoCategory,
		FieldNumberOfGears, FieldWarranty, FieldAverageCO2Emission,
		FieldVideoCallViewing, FieldGas, FieldAutoWarranty,
		FieldNumberOfDoors, FieldChassisType, FieldNumberOfSeats,
		FieldDriveType, FieldColor, FieldMetalicColor, FieldSuspension,
		FieldTireSize, FieldInternalCode,
	}
}

// Image is one gallery entry of a listing, ordered as it appears on the page.
type Image struct {
	URL      string
	Position int
}
