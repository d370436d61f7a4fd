package models

import "time"

// Article is an enriched news article as persisted in the articles collection.
type Article struct {
	URL          string      `bson:"url" json:"url"`
	Title        string      `bson:"title" json:"title"`
	Content      string      `bson:"content" json:"content"`
	Description  string      `bson:"description" json:"description"`
	PubDatetime  time.Time   `bson:"pub_datetime" json:"pub_datetime"`
	Location     string      `bson:"location" json:"location"`
	Sensors      []string    `bson:"sensors,omitempty" json:"sensors,omitempty"`
	PrimaryTag   PrimaryTag  `bson:"primary_tag" json:"primary_tag"`
	SecondaryTag string      `bson:"secondary_tag,omitempty" json:"secondary_tag,omitempty"`
	Dates        []time.Time `bson:"dates" json:"dates"`
}

// Retained reports whether the article survives enrichment: it must be
// relevant and either sit near a sensor or describe weather.
func (a Article) Retained() bool {
	if !a.PrimaryTag.HasSecondary() {
		return false
	}
	return len(a.Sensors) > 0 || a.PrimaryTag.IsWeather()
}

// HasSensor reports whether id is among the assigned sensors.
func (a Article) HasSensor(id string) bool {
	for _, s := range a.Sensors {
		if s == id {
			return true
		}
	}
	return false
}

// ArticleRow is the dashboard table projection of an Article.
type ArticleRow struct {
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	PubDatetime  string   `json:"pub_datetime"`
	PrimaryTag   string   `json:"primary_tag"`
	SecondaryTag string   `json:"secondary_tag"`
	Dates        []string `json:"dates"`
}

const (
	pubDatetimeLayout = "2006-01-02 15:04"
	dayLayout         = "2006-01-02"
)

// Row projects the article for table panels.
func (a Article) Row() ArticleRow {
	dates := make([]string, 0, len(a.Dates))
	for _, d := range a.Dates {
		dates = append(dates, d.UTC().Format(dayLayout))
	}
	return ArticleRow{
		Title:        a.Title,
		URL:          a.URL,
		PubDatetime:  a.PubDatetime.UTC().Format(pubDatetimeLayout),
		PrimaryTag:   string(a.PrimaryTag),
		SecondaryTag: a.SecondaryTag,
		Dates:        dates,
	}
}
