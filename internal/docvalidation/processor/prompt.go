package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
)

type promptSpec struct {
	title  string
	fields []string
	checks string
}

func promptFor(category domain.DocumentCategory) promptSpec {
	switch category {
	case domain.CategoryDrivingLicense:
		return promptSpec{
			title:  "a French or EU driving licence",
			fields: []string{"number", "expiryDate", "categories", "lastName", "firstName"},
			checks: "Check that the licence is not expired and list every vehicle category granted.",
		}
	case domain.CategoryIDCard:
		return promptSpec{
			title:  "a national identity card",
			fields: []string{"number", "lastName", "firstName", "birthDate", "expiryDate"},
			checks: "Check that the card is not expired and that the photo area is present.",
		}
	case domain.CategoryPassport:
		return promptSpec{
			title:  "a passport",
			fields: []string{"number", "lastName", "firstName", "nationality", "expiryDate", "mrz"},
			checks: "Check the machine readable zone and the expiry date.",
		}
	case domain.CategoryInsuranceCard:
		return promptSpec{
			title:  "a health or liability insurance card",
			fields: []string{"socialSecurityNumber", "memberNumber", "insurer", "holderName", "expiryDate"},
			checks: "Check that the insurer and the holder are readable.",
		}
	case domain.CategoryVehicleRegistration:
		return promptSpec{
			title:  "a vehicle registration certificate (carte grise)",
			fields: []string{"plate", "vin", "holderName", "firstRegistrationDate"},
			checks: "Check that the plate follows the AA-123-AA format.",
		}
	case domain.CategoryBusinessRegistration:
		return promptSpec{
			title:  "a business registration extract (Kbis or SIRENE notice)",
			fields: []string{"siret", "companyName", "registrationDate", "legalForm"},
			checks: "Copy the 14-digit SIRET exactly as printed, digits only.",
		}
	case domain.CategoryBankProof:
		return promptSpec{
			title:  "a bank account proof (RIB)",
			fields: []string{"iban", "bic", "holderName", "bankName"},
			checks: "Copy the IBAN exactly as printed, without spaces.",
		}
	case domain.CategoryCertificate:
		return promptSpec{
			title:  "a certificate or attestation",
			fields: []string{"certificateNumber", "issuer", "holderName", "issueDate"},
			checks: "Check that the issuer and the issue date are readable.",
		}
	default:
		return promptSpec{
			title:  "an official document of unknown type",
			fields: []string{"number", "holderName", "issueDate", "expiryDate"},
			checks: "Identify the document type first.",
		}
	}
}

// BuildPrompt writes the instruction sent with the document.
// Metadata lines are sorted by key so the same input always yields the same prompt.
func BuildPrompt(expected domain.DocumentCategory, metadata map[string]string, pages int) string {
	guide := promptFor(expected)

	var b strings.Builder
	fmt.Fprintf(&b, "You are validating %s submitted by a delivery platform user.\n", guide.title)
	b.WriteString(guide.checks + "\n")
	fmt.Fprintf(&b, "Extract these fields into extractedData: %s.\n", strings.Join(guide.fields, ", "))
	b.WriteString("Dates must use the YYYY-MM-DD format.\n")

	categories := make([]string, 0, len(domain.AllCategories()))
	for _, c := range domain.AllCategories() {
		categories = append(categories, string(c))
	}
	fmt.Fprintf(&b, "documentType must be one of: %s, unknown.\n", strings.Join(categories, ", "))

	b.WriteString("Answer with a single JSON object and nothing else, using the keys ")
	b.WriteString(`"isValid" (boolean), "confidence" (number between 0 and 1), "documentType" (string), `)
	b.WriteString(`"extractedData" (object) and "issues" (array of {"severity","code","message","field"}).` + "\n")

	if pages > 0 {
		fmt.Fprintf(&b, "The document has %d page(s).\n", pages)
	}

	if len(metadata) > 0 {
		keys := make([]string, 0, len(metadata))
		for k := range metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("Context provided by the platform:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, metadata[k])
		}
	}

	return b.String()
}
