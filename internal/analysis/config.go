package analysis

// Config holds the tunable token lists and thresholds. The lists are
// policy, not structure: swapping them never changes the shape of the
// detection algorithms.
type Config struct {
	// NegationMarkers and AffirmativeMarkers drive contradiction
	// candidate detection between co-tagged memories.
	NegationMarkers    []string
	AffirmativeMarkers []string

	// Stopwords are excluded from pattern token counting.
	Stopwords []string

	// KeyPhrases are reasoning themes tracked as patterns. Multi-word
	// phrases are counted by substring occurrence; single-word entries
	// are already covered by the token pass and only document intent.
	KeyPhrases []string

	// MinOccurrences is the frequency threshold for a token or phrase
	// to register as a pattern.
	MinOccurrences int

	// Quality bucket thresholds.
	MinMemories           int
	GoodConfidence        float64
	HighConfidence        float64
	MaxContradictionsHigh int

	stopwords map[string]bool
}

// DefaultConfig returns the stock marker and stopword lists.
func DefaultConfig() Config {
	return Config{
		NegationMarkers:    []string{"not", "false", "incorrect", "wrong", "impossible", "never"},
		AffirmativeMarkers: []string{"true", "correct", "right", "possible", "valid", "always"},
		Stopwords: []string{
			"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
			"from", "has", "have", "in", "is", "it", "its", "of", "on",
			"or", "that", "the", "this", "to", "was", "we", "were", "which",
			"will", "with",
		},
		KeyPhrases: []string{
			"first principles", "breaking down", "assumption", "because",
			"therefore", "however", "alternatively", "given that",
			"it follows", "contradiction",
		},
		MinOccurrences:        2,
		MinMemories:           3,
		GoodConfidence:        0.6,
		HighConfidence:        0.8,
		MaxContradictionsHigh: 0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.NegationMarkers == nil {
		c.NegationMarkers = def.NegationMarkers
	}
	if c.AffirmativeMarkers == nil {
		c.AffirmativeMarkers = def.AffirmativeMarkers
	}
	if c.Stopwords == nil {
		c.Stopwords = def.Stopwords
	}
	if c.KeyPhrases == nil {
		c.KeyPhrases = def.KeyPhrases
	}
	if c.MinOccurrences <= 0 {
		c.MinOccurrences = def.MinOccurrences
	}
	if c.MinMemories <= 0 {
		c.MinMemories = def.MinMemories
	}
	if c.GoodConfidence <= 0 {
		c.GoodConfidence = def.GoodConfidence
	}
	if c.HighConfidence <= 0 {
		c.HighConfidence = def.HighConfidence
	}

	c.stopwords = make(map[string]bool, len(c.Stopwords))
	for _, w := range c.Stopwords {
		c.stopwords[w] = true
	}
	return c
}
