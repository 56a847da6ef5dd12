package imagegen

import (
	"strings"
	"text/template"

	"github.com/i474232898/city-weather-poster/internal/catalog"
	"github.com/i474232898/city-weather-poster/internal/weather"
)

var promptTemplate = template.Must(template.New("prompt").Parse(
	`Present a clear, 45° top-down isometric miniature 3D cartoon scene of {{.Name}}, featuring its most iconic landmarks and architectural elements.

LANDMARKS TO INCLUDE:
{{- range .Landmarks}}
- {{.}}
{{- else}}
- the most recognizable buildings and streets of {{.Name}}
{{- end}}

STYLE REQUIREMENTS:
- Use soft, refined textures with realistic PBR materials
- Gentle, lifelike lighting and shadows
- Clean, minimalistic composition
- Soft, solid-colored background (subtle gradient acceptable)

CURRENT WEATHER CONDITIONS TO INTEGRATE:
- Weather: {{.Description}}
- {{.Atmosphere}}
- Time of day: {{.TimeOfDay}}
- Temperature feel: {{.Feel}}

TEXT OVERLAY (must be clearly legible):
- At the top-center, place the title "{{.Name}}" in large bold text
- Below the title: a prominent weather icon {{.Emoji}}
- Below the icon: the date "{{.Date}}" in small text
- Below the date: the temperature "{{.Temperature}}" in medium text

TEXT STYLING:
- All text must be centered with consistent spacing
- Text may subtly overlap the tops of the buildings
- Use a clean, modern sans-serif font
- Ensure high contrast for readability

OUTPUT:
- {{.Shape}} {{.Width}}x{{.Height}} dimension
- High quality, suitable for social media posting`))

type promptData struct {
	Name        string
	Landmarks   []string
	Description string
	Atmosphere  string
	TimeOfDay   string
	Feel        string
	Emoji       string
	Date        string
	Temperature string
	Shape       string
	Width       int
	Height      int
}

// BuildPrompt renders the image prompt for a location and its weather.
func BuildPrompt(loc weather.Location, snap weather.WeatherSnapshot, img catalog.ImageSettings) string {
	shape := "Square"
	switch {
	case img.Width > img.Height:
		shape = "Landscape"
	case img.Width < img.Height:
		shape = "Portrait"
	}

	data := promptData{
		Name:        loc.Name,
		Landmarks:   loc.Landmarks,
		Description: snap.Description,
		Atmosphere:  snap.Atmosphere(),
		TimeOfDay:   snap.TimeOfDay(),
		Feel:        snap.TemperatureFeel(),
		Emoji:       snap.Emoji(),
		Date:        snap.FormatDate(),
		Temperature: snap.FormatTemperature("C"),
		Shape:       shape,
		Width:       img.Width,
		Height:      img.Height,
	}

	var b strings.Builder
	// The template and data are fixed; Execute cannot fail on a strings.Builder.
	_ = promptTemplate.Execute(&b, data)
	return b.String()
}
