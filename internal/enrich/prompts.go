package enrich

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// Prompts holds the system prompts for each generator step.
type Prompts struct {
	Description string
	Relevancy   string
	Location    string
	PrimaryTag  string
	Dates       string
	// Secondary maps each primary tag that carries a sub-category to its prompt.
	Secondary map[models.PrimaryTag]string
}

// promptFiles maps prompt file names, relative to the prompts directory, to
// the field they override.
var promptFiles = map[string]func(p *Prompts) *string{
	"description_prompt.txt": func(p *Prompts) *string { return &p.Description },
	"relevancy_prompt.txt":   func(p *Prompts) *string { return &p.Relevancy },
	"location_prompt.txt":    func(p *Prompts) *string { return &p.Location },
	"primary_tag_prompt.txt": func(p *Prompts) *string { return &p.PrimaryTag },
	"date_prompt.txt":        func(p *Prompts) *string { return &p.Dates },
}

var secondaryFiles = map[string]models.PrimaryTag{
	"secondary_tags/public_events_prompt.txt":                 models.PrimaryPublicEvents,
	"secondary_tags/weather_and_natural_phenomena_prompt.txt": models.PrimaryWeather,
	"secondary_tags/transportation_and_traffic_prompt.txt":    models.PrimaryTransport,
	"secondary_tags/pollution_events_prompt.txt":              models.PrimaryPollution,
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		Description: "Summarize the following Greek news article in two or three Greek sentences. " +
			"Keep every place name, date and event detail. Answer with the summary only.",
		Relevancy: "You decide whether a news summary describes an event in or around the city of Patras " +
			"that could affect air quality or the environment: strikes, marches, gatherings, fires, traffic, " +
			"weather or pollution. Answer with exactly one word: σχετικό or μη σχετικό.",
		Location: "List the places in or around Patras where the event in the summary happens. " +
			"Give each as a searchable place name followed by \", Πάτρα\". " +
			"Separate multiple places with \" / \". Answer with the places only.",
		PrimaryTag: "Classify the summary into exactly one category and answer with the category text only: " +
			string(models.PrimaryPublicEvents) + ", " +
			string(models.PrimaryWeather) + ", " +
			string(models.PrimaryTransport) + ", " +
			string(models.PrimaryPollution) + ", " +
			string(models.PrimaryNotRelevant) + ".",
		Dates: "Given the published date and the description of an event, list the dates on which the event " +
			"takes place, formatted DD/MM/YYYY and separated by ///. Resolve relative expressions such as " +
			"\"yesterday\" against the published date. Answer none when no date can be determined.",
		Secondary: map[models.PrimaryTag]string{
			models.PrimaryPublicEvents: "Classify the public event in the summary with one short Greek label, " +
				"for example: Απεργία, Πορεία, Συναυλία, Αθλητική εκδήλωση, Θρησκευτική εκδήλωση. Answer with the label only.",
			models.PrimaryWeather: "Classify the weather or natural phenomenon in the summary with one short Greek label, " +
				"for example: Καύσωνας, Καταιγίδα, Ισχυροί άνεμοι, Σκόνη, Σεισμός. Answer with the label only.",
			models.PrimaryTransport: "Classify the transportation or traffic event in the summary with one short Greek label, " +
				"for example: Κυκλοφοριακές ρυθμίσεις, Τροχαίο, Έργα οδοποιίας, Απεργία ΜΜΜ. Answer with the label only.",
			models.PrimaryPollution: "Classify the pollution or environmental incident in the summary with one short Greek label, " +
				"for example: Πυρκαγιά, Καύση απορριμμάτων, Βιομηχανική ρύπανση, Διαρροή. Answer with the label only.",
		},
	}
}

// LoadPrompts starts from DefaultPrompts and replaces each prompt whose file
// exists under dir. An empty dir yields the defaults.
func LoadPrompts(dir string) (Prompts, error) {
	p := DefaultPrompts()
	if dir == "" {
		return p, nil
	}
	for name, field := range promptFiles {
		text, ok, err := readPrompt(dir, name)
		if err != nil {
			return Prompts{}, err
		}
		if ok {
			*field(&p) = text
		}
	}
	for name, tag := range secondaryFiles {
		text, ok, err := readPrompt(dir, name)
		if err != nil {
			return Prompts{}, err
		}
		if ok {
			p.Secondary[tag] = text
		}
	}
	return p, nil
}

func readPrompt(dir, name string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read prompt %s: %w", name, err)
	}
	text := strings.TrimSpace(string(data))
	return text, text != "", nil
}
