package listing

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// transformKind tags the coercion applied to a raw field value. The
// registry below maps each coercible field to exactly one kind; fields
// without an entry pass through unchanged.
type transformKind int

const (
	// transformYear parses "2018." or "2018" into an int.
	transformYear transformKind = iota
	// transformBool maps the localized affirmative "da" to true.
	transformBool
	// transformIntGrouped takes the first token and strips thousands
	// separators, e.g. "189.000 km" -> 189000.
	transformIntGrouped
	// transformIntFirst parses the first token as a plain int, e.g. "110 kW".
	transformIntFirst
	// transformFloatComma parses the first token with a decimal comma,
	// e.g. "5,4 l/100km" -> 5.4.
	transformFloatComma
	// transformOwner parses a leading integer if the first token is all
	// digits, otherwise keeps the raw string.
	transformOwner
	// transformDisplacement strips grouping dots and the cm3 suffix,
	// e.g. "1.998 cm3" -> 1998.
	transformDisplacement
	// transformPrice strips grouping dots and the currency symbol and
	// parses a comma-decimal float; on failure the raw string is kept.
	transformPrice
)

// transforms registers the per-field coercions. Mirrors the columns the
// site renders numerically or as yes/no flags; everything else stays text.
var transforms = map[Field]transformKind{
	FieldManufactureYear:            transformYear,
	FieldModelYear:                  transformYear,
	FieldInTrafficSince:             transformYear,
	FieldFirstRegistrationInCroatia: transformYear,
	FieldMileage:                    transformIntGrouped,
	FieldPower:                      transformIntFirst,
	FieldNumberOfGears:              transformIntFirst,
	FieldNumberOfDoors:              transformIntFirst,
	FieldNumberOfSeats:              transformIntFirst,
	FieldFuelConsumption:            transformFloatComma,
	FieldAverageCO2Emission:         transformFloatComma,
	FieldOwner:                      transformOwner,
	FieldDisplacement:               transformDisplacement,
	FieldServiceBook:                transformBool,
	FieldGaraged:                    transformBool,
	FieldVideoCallViewing:           transformBool,
	FieldGas:                        transformBool,
	FieldMetalicColor:               transformBool,
	FieldPrice:                      transformPrice,
}

// Normalize applies the registered coercion to every raw field. A field
// with no registered transform passes through unchanged; a transform
// failure is logged and the raw value is kept. Normalization never fails
// a whole record over one bad field.
func Normalize(raw RawFields, logger *zap.Logger) map[Field]any {
	out := make(map[Field]any, len(raw))
	for field, value := range raw {
		kind, ok := transforms[field]
		if !ok {
			out[field] = value
			continue
		}
		coerced, err := applyTransform(kind, value)
		if err != nil {
			logger.Warn("field transform failed, keeping raw value",
				zap.String("field", string(field)),
				zap.String("value", value),
				zap.Error(err))
			out[field] = value
			continue
		}
		out[field] = coerced
	}
	return out
}

func applyTransform(kind transformKind, value string) (any, error) {
	switch kind {
	case transformYear:
		return parseYear(value)
	case transformBool:
		return strings.EqualFold(strings.TrimSpace(value), "da"), nil
	case transformIntGrouped:
		first, err := firstToken(value)
		if err != nil {
			return nil, err
		}
		return strconv.Atoi(strings.ReplaceAll(first, ".", ""))
	case transformIntFirst:
		first, err := firstToken(value)
		if err != nil {
			return nil, err
		}
		return strconv.Atoi(first)
	case transformFloatComma:
		first, err := firstToken(value)
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(strings.ReplaceAll(first, ",", "."), 64)
	case transformOwner:
		first, err := firstToken(value)
		if err != nil {
			return nil, err
		}
		if n, convErr := strconv.Atoi(first); convErr == nil {
			return n, nil
		}
		return value, nil
	case transformDisplacement:
		s := strings.ReplaceAll(value, ".", "")
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "cm3"))
		return strconv.Atoi(s)
	case transformPrice:
		return NormalizePrice(value), nil
	default:
		return nil, fmt.Errorf("unknown transform kind %d", kind)
	}
}

// NormalizePrice strips the locale's thousands separators and currency
// symbol and parses a comma-decimal float. Price formatting is the least
// reliable field on the site, so a value that does not parse is returned
// unchanged as a string instead of raising.
func NormalizePrice(value string) any {
	s := strings.ReplaceAll(value, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = strings.TrimSpace(strings.ReplaceAll(s, "€", ""))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value
	}
	return f
}

func parseYear(value string) (int, error) {
	v := strings.TrimSpace(value)
	if idx := strings.Index(v, "."); idx >= 0 {
		v = v[:idx]
	}
	return strconv.Atoi(v)
}

func firstToken(value string) (string, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty value")
	}
	return fields[0], nil
}
