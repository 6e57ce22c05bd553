package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VATError explains why a tax identifier was rejected
type VATError struct {
	VAT    string
	Reason string
}

func (e *VATError) Error() string {
	return fmt.Sprintf("invalid VAT %q: %s", e.VAT, e.Reason)
}

// vatFormats holds the identifier body format of each EU country, after the
// two-letter prefix.
var vatFormats = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^U[0-9]{8}$`),
	"BE": regexp.MustCompile(`^[01][0-9]{9}$`),
	"BG": regexp.MustCompile(`^[0-9]{9,10}$`),
	"CY": regexp.MustCompile(`^[0-9]{8}[A-Z]$`),
	"CZ": regexp.MustCompile(`^[0-9]{8,10}$`),
	"DE": regexp.MustCompile(`^[0-9]{9}$`),
	"DK": regexp.MustCompile(`^[0-9]{8}$`),
	"EE": regexp.MustCompile(`^[0-9]{9}$`),
	"EL": regexp.MustCompile(`^[0-9]{9}$`),
	"ES": regexp.MustCompile(`^[0-9A-Z][0-9]{7}[0-9A-Z]$`),
	"FI": regexp.MustCompile(`^[0-9]{8}$`),
	"FR": regexp.MustCompile(`^[0-9A-HJ-NP-Z]{2}[0-9]{9}$`),
	"GB": regexp.MustCompile(`^([0-9]{9}|[0-9]{12}|GD[0-4][0-9]{2}|HA[5-9][0-9]{2})$`),
	"HR": regexp.MustCompile(`^[0-9]{11}$`),
	"HU": regexp.MustCompile(`^[0-9]{8}$`),
	"IE": regexp.MustCompile(`^([0-9]{7}[A-W][A-I]?|[0-9][A-Z+*][0-9]{5}[A-W])$`),
	"IT": regexp.MustCompile(`^[0-9]{11}$`),
	"LT": regexp.MustCompile(`^([0-9]{9}|[0-9]{12})$`),
	"LU": regexp.MustCompile(`^[0-9]{8}$`),
	"LV": regexp.MustCompile(`^[0-9]{11}$`),
	"MT": regexp.MustCompile(`^[0-9]{8}$`),
	"NL": regexp.MustCompile(`^[0-9]{9}B[0-9]{2}$`),
	"PL": regexp.MustCompile(`^[0-9]{10}$`),
	"PT": regexp.MustCompile(`^[0-9]{9}$`),
	"RO": regexp.MustCompile(`^[0-9]{2,10}$`),
	"SE": regexp.MustCompile(`^[0-9]{10}01$`),
	"SI": regexp.MustCompile(`^[0-9]{8}$`),
	"SK": regexp.MustCompile(`^[0-9]{10}$`),
}

// vatChecksums verify the check digits of countries that have them
var vatChecksums = map[string]func(string) string{
	"ES": checkSpanish,
	"PT": checkPortuguese,
	"IT": checkItalian,
}

var vatSeparators = strings.NewReplacer(" ", "", ".", "", "-", "", "/", "", "_", "")

// NormalizeVAT upper-cases an identifier, strips separators and prefixes the
// default country when no known country prefix is present. Greece is written
// EL in VAT numbers.
func NormalizeVAT(raw, defaultCountry string) string {
	vat := strings.ToUpper(vatSeparators.Replace(strings.TrimSpace(raw)))
	if vat == "" {
		return ""
	}
	if strings.HasPrefix(vat, "GR") {
		vat = "EL" + vat[2:]
	}
	if len(vat) > 2 {
		if _, known := vatFormats[vat[:2]]; known {
			return vat
		}
	}
	country := strings.ToUpper(defaultCountry)
	if country == "GR" {
		country = "EL"
	}
	return country + vat
}

// CheckVAT validates a normalized identifier. Identifiers of countries
// without a known format are accepted as they are.
func CheckVAT(vat string) error {
	if len(vat) < 3 {
		return &VATError{VAT: vat, Reason: "too short"}
	}

	country, body := vat[:2], vat[2:]
	format, known := vatFormats[country]
	if !known {
		return nil
	}
	if !format.MatchString(body) {
		return &VATError{VAT: vat, Reason: fmt.Sprintf("does not match the %s format", country)}
	}
	if check, ok := vatChecksums[country]; ok {
		if reason := check(body); reason != "" {
			return &VATError{VAT: vat, Reason: reason}
		}
	}
	return nil
}

// ValidateVAT normalizes and checks an identifier in one step
func ValidateVAT(raw, defaultCountry string) (string, error) {
	vat := NormalizeVAT(raw, defaultCountry)
	if vat == "" {
		return "", nil
	}
	return vat, CheckVAT(vat)
}

const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

// checkSpanish covers DNI, NIE, K/L/M personal numbers and CIF
func checkSpanish(body string) string {
	first := body[0]
	switch {
	case first >= '0' && first <= '9':
		return checkDNI(body[:8], body[8])
	case first == 'X' || first == 'Y' || first == 'Z':
		return checkDNI(string('0'+(first-'X'))+body[1:8], body[8])
	case first == 'K' || first == 'L' || first == 'M':
		return checkDNI(body[1:8], body[8])
	case strings.IndexByte("ABCDEFGHJNPQRSUVW", first) >= 0:
		return checkCIF(body)
	}
	return "unknown Spanish identifier type"
}

func checkDNI(digits string, control byte) string {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "identifier digits are not numeric"
	}
	if dniLetters[n%23] != control {
		return "control letter does not match"
	}
	return ""
}

func checkCIF(body string) string {
	sum := 0
	for i := 1; i <= 7; i++ {
		d := int(body[i] - '0')
		if d < 0 || d > 9 {
			return "identifier digits are not numeric"
		}
		if i%2 == 0 {
			sum += d
		} else {
			double := d * 2
			sum += double/10 + double%10
		}
	}
	digit := (10 - sum%10) % 10
	letter := "JABCDEFGHI"[digit]
	control := body[8]

	switch first := body[0]; {
	case strings.IndexByte("PQRSNW", first) >= 0:
		if control != letter {
			return "control letter does not match"
		}
	case strings.IndexByte("ABEH", first) >= 0:
		if control != byte('0'+digit) {
			return "control digit does not match"
		}
	default:
		if control != letter && control != byte('0'+digit) {
			return "control character does not match"
		}
	}
	return ""
}

func checkPortuguese(body string) string {
	sum := 0
	for i := 0; i < 8; i++ {
		sum += int(body[i]-'0') * (9 - i)
	}
	check := 11 - sum%11
	if check >= 10 {
		check = 0
	}
	if int(body[8]-'0') != check {
		return "check digit does not match"
	}
	return ""
}

func checkItalian(body string) string {
	sum := 0
	for i := 0; i < 10; i++ {
		d := int(body[i] - '0')
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	if int(body[10]-'0') != (10-sum%10)%10 {
		return "check digit does not match"
	}
	return ""
}
