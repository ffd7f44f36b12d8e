// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lexical

import "math"

// drugNames is a small lexicon of agents that frequently decide whether two
// otherwise similar documents answer the same question.
var drugNames = map[string]bool{
	"apixaban": true, "rivaroxaban": true, "dabigatran": true, "edoxaban": true,
	"warfarin": true, "heparin": true, "enoxaparin": true, "aspirin": true,
	"clopidogrel": true, "ticagrelor": true, "prasugrel": true, "metformin": true,
	"empagliflozin": true, "dapagliflozin": true, "canagliflozin": true,
	"semaglutide": true, "liraglutide": true, "insulin": true, "atorvastatin": true,
	"rosuvastatin": true, "simvastatin": true, "lisinopril": true, "sacubitril": true,
	"valsartan": true, "losartan": true, "spironolactone": true, "furosemide": true,
	"metoprolol": true, "carvedilol": true, "bisoprolol": true, "amiodarone": true,
	"digoxin": true, "norepinephrine": true, "vasopressin": true, "epinephrine": true,
	"hydrocortisone": true, "dexamethasone": true, "vancomycin": true,
	"piperacillin": true, "meropenem": true, "ceftriaxone": true, "amoxicillin": true,
	"tenecteplase": true, "alteplase": true, "levothyroxine": true,
}

// comparativeTerms mark head-to-head questions and trials.
var comparativeTerms = map[string]bool{
	"versus": true, "vs": true, "compared": true, "comparison": true,
	"comparative": true, "superior": true, "superiority": true,
	"noninferior": true, "non-inferior": true, "noninferiority": true,
	"non-inferiority": true, "head-to-head": true,
}

const (
	drugBoost        = 0.1
	maxDrugBoost     = 0.2
	comparativeBoost = 0.05
)

// TieBreak returns token-Jaccard similarity plus small boosts for shared
// drug names and shared comparative language, clamped to [0, 1].
func TieBreak(query, doc string) float64 {
	score := Jaccard(query, doc)

	q, d := rawTokenSet(query), rawTokenSet(doc)
	drugs := 0.0
	for t := range q {
		if drugNames[t] && d[t] {
			drugs += drugBoost
		}
	}
	score += math.Min(drugs, maxDrugBoost)

	if hasAny(q, comparativeTerms) && hasAny(d, comparativeTerms) {
		score += comparativeBoost
	}
	return math.Min(score, 1)
}

// IsDrugName reports whether token is in the drug lexicon.
func IsDrugName(token string) bool { return drugNames[token] }

// rawTokenSet keeps stopwords so comparative markers like "vs" survive.
func rawTokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range splitWords(text) {
		set[t] = true
	}
	return set
}

func hasAny(set, terms map[string]bool) bool {
	for t := range set {
		if terms[t] {
			return true
		}
	}
	return false
}
