// Package matcher holds the candidate scoring core: feature encoding,
// cosine ranking and the exclusion-set helpers. It has no dependencies so
// it can be exercised in isolation from storage and transport.
package matcher

// Attributes is the encoder's view of a profile. Optional fields are
// pointers; nil means the user never answered.
type Attributes struct {
	ID         string
	Gender     *string
	University *string
	Diet       *string
	Fitness    *string
	Sleep      *string
	Social     *string
	Hobbies    []string
}

// Enumeration tables. Encoding is the zero-based index into the table,
// len(table) for a value outside it, -1 for a missing answer.
var (
	genderOptions  = []string{"Male", "Female", "Other"}
	dietOptions    = []string{"Non-Veg", "Veg"}
	fitnessOptions = []string{"None", "Occasional", "Daily"}
	sleepOptions   = []string{"Early Bird", "Night Owl", "Flexible"}
	socialOptions  = []string{"Introvert", "Extrovert", "Ambivert"}
)

// hobbyVocabulary lists the hobbies that get their own presence dimension.
// Anything outside it contributes nothing to the vector.
var hobbyVocabulary = []string{"Gym", "Football", "Traveling", "Video Games", "Finance"}

// Per-dimension weights, applied after encoding. Shared hobbies and sleep
// schedule dominate the score; social style is a tiebreaker.
const (
	hobbyWeight  = 2
	sleepWeight  = 3
	socialWeight = 1
)

// VectorLen is the fixed length of every encoded feature vector:
// gender, one dimension per vocabulary hobby, diet, fitness, sleep, social.
var VectorLen = 4 + len(hobbyVocabulary)

func encodeEnum(v *string, table []string) float64 {
	if v == nil {
		return -1
	}
	for i, opt := range table {
		if opt == *v {
			return float64(i)
		}
	}
	return float64(len(table))
}

// Encode turns profile attributes into the weighted feature vector used by
// CosineSimilarity. A nil profile encodes to an empty vector.
func Encode(a *Attributes) []float64 {
	if a == nil {
		return []float64{}
	}
	vec := make([]float64, 0, VectorLen)
	vec = append(vec, encodeEnum(a.Gender, genderOptions))
	for _, hobby := range hobbyVocabulary {
		present := 0.0
		for _, h := range a.Hobbies {
			if h == hobby {
				present = 1
				break
			}
		}
		vec = append(vec, present*hobbyWeight)
	}
	vec = append(vec, encodeEnum(a.Diet, dietOptions))
	vec = append(vec, encodeEnum(a.Fitness, fitnessOptions))
	vec = append(vec, encodeEnum(a.Sleep, sleepOptions)*sleepWeight)
	vec = append(vec, encodeEnum(a.Social, socialOptions)*socialWeight)
	return vec
}
