package pipeline

import (
	"strings"

	"github.com/fastlease/deal-ingest/internal/model"
)

// categoryKeywords maps each category to the substrings that select it.
var categoryKeywords = map[model.Category][]string{
	model.CategoryClient: {
		"passport",
		"emirates id",
		"emirates_id",
		"emirates-id",
		"emiratesid",
		"client id",
		"clientid",
		"driver",
		"license",
		"driving",
		"customer",
		"buyer id",
		"personal",
		"residence",
		"contact",
	},
	model.CategoryVehicle: {
		"mulkia",
		"vehicle information",
		"vehicle inspection",
		"inspection",
		"passing",
		"gps",
		"registration",
		"license plate",
		"plate",
		"insurance",
		"valuation",
		"certificate",
		"vin",
		"chassis",
		"odometer",
		"service",
		"maintenance",
	},
	model.CategoryDeal: {
		"agreement",
		"contract",
		"schedule",
		"invoice",
		"quotation",
		"addendum",
		"authorization",
		"purchase",
		"loan",
		"term sheet",
		"payment",
		"offer",
	},
}

// classifyOrder fixes the precedence between categories. "license" sits
// in the client list, so a driving license never lands in vehicle even
// though "license plate" would also match.
var classifyOrder = []model.Category{
	model.CategoryClient,
	model.CategoryVehicle,
	model.CategoryDeal,
}

// Classify buckets a document from its extracted type, title and file
// name. Every input maps to some category; unmatched documents default
// to deal.
func Classify(docType, title, filename string) model.Category {
	source := strings.ToLower(docType + " " + title + " " + filename)

	for _, cat := range classifyOrder {
		for _, keyword := range categoryKeywords[cat] {
			if strings.Contains(source, keyword) {
				return cat
			}
		}
	}

	// Generic fallbacks before the default.
	if strings.Contains(source, "vehicle") {
		return model.CategoryVehicle
	}
	if strings.Contains(source, "client") {
		return model.CategoryClient
	}
	return model.CategoryDeal
}
