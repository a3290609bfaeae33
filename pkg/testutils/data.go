//go:build testutils

package testutils

import (
	"encoding/json"

	"github.com/rxevidence/rxevidence/pkg/models"
)

// TestLabel is an abridged ibuprofen label with three sections.
var TestLabel = models.Label{
	DrugQuery:     "ibuprofen",
	BrandName:     "Advil",
	GenericName:   "IBUPROFEN",
	Manufacturer:  "Haleon US Holdings LLC",
	EffectiveTime: "20230615",
	Sections: map[string]string{
		"warnings": "Allergy alert: Ibuprofen may cause a severe allergic reaction, especially in people allergic to aspirin. " +
			"Symptoms may include hives, facial swelling, asthma (wheezing), shock, skin reddening, rash, blisters. " +
			"Stomach bleeding warning: This product contains an NSAID, which may cause severe stomach bleeding.",
		"dosage_and_administration": "Adults and children 12 years and over: take 1 tablet every 4 to 6 hours while symptoms persist. " +
			"If pain or fever does not respond to 1 tablet, 2 tablets may be used. Do not exceed 6 tablets in 24 hours.",
		"drug_interactions": "Ask a doctor or pharmacist before use if you are taking aspirin for heart attack or stroke, " +
			"because ibuprofen may decrease this benefit of aspirin. Also ask if you are under a doctor's care for any serious condition.",
	},
	RawResult: json.RawMessage(`{"id":"test-ibuprofen","effective_time":"20230615"}`),
}

// TestSectionOrder is the extraction order for TestLabel.Sections.
var TestSectionOrder = []string{
	"dosage_and_administration",
	"drug_interactions",
	"warnings",
}

var TestQueries = []string{
	"What is the maximum daily dose of ibuprofen?",
	"Can I take ibuprofen with aspirin?",
	"Does ibuprofen cause stomach bleeding?",
}
