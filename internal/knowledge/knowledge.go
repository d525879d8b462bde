package knowledge

import "github.com/Brownie44l1/blight-api/internal/model"

// Info is the reference text shown alongside a prediction.
type Info struct {
	Description string `json:"description"`
	Symptoms    string `json:"symptoms"`
	Treatment   string `json:"treatment"`
	Prevention  string `json:"prevention"`
}

type Record struct {
	Label string `json:"label"`
	Info  Info   `json:"info"`
}

// Base is a read-only label lookup. It is never modified after construction.
type Base struct {
	records []Record
	index   map[string]int
}

func NewBase(records []Record) *Base {
	b := &Base{
		records: make([]Record, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, r := range records {
		if i, ok := b.index[r.Label]; ok {
			b.records[i] = r
			continue
		}
		b.index[r.Label] = len(b.records)
		b.records = append(b.records, r)
	}
	return b
}

func Default() *Base {
	return NewBase(DefaultRecords)
}

// Lookup returns the zero Info and false for unknown labels.
func (b *Base) Lookup(label string) (Info, bool) {
	i, ok := b.index[label]
	if !ok {
		return Info{}, false
	}
	return b.records[i].Info, true
}

func (b *Base) Labels() []string {
	labels := make([]string, len(b.records))
	for i, r := range b.records {
		labels[i] = r.Label
	}
	return labels
}

func (b *Base) All() []Record {
	return append([]Record(nil), b.records...)
}

// Missing returns the labels that have no record.
func (b *Base) Missing(labels []string) []string {
	var missing []string
	for _, label := range labels {
		if _, ok := b.index[label]; !ok {
			missing = append(missing, label)
		}
	}
	return missing
}

var DefaultRecords = []Record{
	{
		Label: model.LabelEarlyBlight,
		Info: Info{
			Description: "A common fungal disease that affects tomatoes and potatoes. It first appears on lower, older leaves as small, brown lesions.",
			Symptoms:    "Dark spots with concentric rings (target spots), yellowing around spots, leaf drop.",
			Treatment:   "Use fungicides containing mancozeb or chlorothalonil. Ensure good air circulation and avoid overhead watering.",
			Prevention:  "Plant resistant varieties, rotate crops, and maintain garden hygiene by removing infected plant debris.",
		},
	},
	{
		Label: model.LabelLateBlight,
		Info: Info{
			Description: "A devastating fungal disease caused by Phytophthora infestans. It can rapidly destroy entire crops of potatoes and tomatoes.",
			Symptoms:    "Large, dark, water-soaked spots on leaves and stems. A white moldy growth may appear on the underside of leaves in humid conditions.",
			Treatment:   "Apply fungicides proactively, especially during cool, wet weather. Copper-based fungicides are often used.",
			Prevention:  "Ensure good drainage, space plants for air circulation, and monitor weather forecasts for conditions favorable to blight.",
		},
	},
	{
		Label: model.LabelHealthy,
		Info: Info{
			Description: "The plant shows no visible signs of disease. Leaves are vibrant and well-formed.",
			Symptoms:    "No spots, lesions, or discoloration. Strong, vigorous growth.",
			Treatment:   "None required. Continue good care practices.",
			Prevention:  "Maintain optimal watering, sunlight, and nutrient levels to keep the plant resilient to potential diseases.",
		},
	},
}
