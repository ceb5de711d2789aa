package moffin

import (
	"regexp"
	"strings"

	"github.com/trezcool/forma/core/form"
)

var (
	rfcRegex  = regexp.MustCompile(`^[A-ZÑ&]{3,4}\d{6}[A-Z0-9]{3}$`)
	curpRegex = regexp.MustCompile(`^[A-Z][AEIOUX][A-Z]{2}\d{6}[HM][A-Z]{5}[A-Z0-9]\d$`)

	// default {source key: target field id} mappings, per kind
	defaultMappings = map[string]map[string]string{
		KindRFC: {
			"razon_social":               "razon_social",
			"nombre_completo":            "nombre_completo",
			"situacion_fiscal":           "situacion_fiscal",
			"fecha_constitucion":         "fecha_constitucion",
			"domicilio_fiscal.calle":     "calle",
			"domicilio_fiscal.colonia":   "colonia",
			"domicilio_fiscal.municipio": "municipio",
			"domicilio_fiscal.estado":    "estado",
			"domicilio_fiscal.cp":        "codigo_postal",
		},
		KindCURP: {
			"nombres":            "nombres",
			"primer_apellido":    "primer_apellido",
			"segundo_apellido":   "segundo_apellido",
			"fecha_nacimiento":   "fecha_nacimiento",
			"sexo":               "sexo",
			"entidad_nacimiento": "entidad_nacimiento",
			"nacionalidad":       "nacionalidad",
		},
	}
)

// ValidRFC reports whether rfc, once upper-cased, is a well-formed RFC with homoclave.
func ValidRFC(rfc string) bool {
	return rfcRegex.MatchString(strings.ToUpper(strings.TrimSpace(rfc)))
}

// ValidCURP reports whether curp, once upper-cased, is a well-formed CURP.
func ValidCURP(curp string) bool {
	return curpRegex.MatchString(strings.ToUpper(strings.TrimSpace(curp)))
}

// Kind returns the autocomplete kind of fld: from its endpoint, or else from its label.
func Kind(fld form.Field) string {
	if fld.Autocomplete != nil {
		switch fld.Autocomplete.APIEndpoint {
		case form.EndpointRFCData:
			return KindRFC
		case form.EndpointCURPData:
			return KindCURP
		case form.EndpointRFCCalculator:
			return KindRFCCalculator
		}
	}
	label := strings.ToLower(fld.Label)
	switch {
	case strings.Contains(label, "curp"):
		return KindCURP
	case strings.Contains(label, "rfc"):
		return KindRFC
	}
	return ""
}

// mapping returns the {source key: target field id} mapping used to prefill from fld.
func mapping(fld form.Field, kind string) map[string]string {
	if fld.Autocomplete != nil && len(fld.Autocomplete.FieldMapping) > 0 {
		return fld.Autocomplete.FieldMapping
	}
	if kind == KindRFCCalculator {
		return map[string]string{"rfc": fld.ID}
	}
	return defaultMappings[kind]
}

// Prefill maps data onto the fields of t. Dotted source keys reach into nested objects;
// targets that are not fields of t and empty values are skipped.
func Prefill(t form.Template, fld form.Field, kind string, data map[string]interface{}) form.Answers {
	prefill := make(form.Answers)
	for src, target := range mapping(fld, kind) {
		if _, ok := t.Field(target); !ok {
			continue
		}
		val, ok := lookup(data, src)
		if !ok || form.IsEmptyAnswer(val) {
			continue
		}
		prefill[target] = val
	}
	return prefill
}

func lookup(data map[string]interface{}, key string) (interface{}, bool) {
	var cur interface{} = data
	for _, part := range strings.Split(key, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
