package digest

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/sneakyguy/reddit-mentions-bot/internal/models"
)

const digestTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reddit Mentions Digest</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f4f4f4; }
        .container { max-width: 700px; margin: auto; background-color: #ffffff; padding: 20px; border-radius: 8px; }
        .brand { color: #444; border-bottom: 2px solid #eee; padding-bottom: 5px; }
        .mention { margin-bottom: 20px; padding: 15px; border: 1px solid #ddd; border-radius: 8px; background-color: #f9f9f9; }
        .mention-title a { text-decoration: none; color: #0066cc; font-weight: bold; }
        .mention-meta { color: #666; font-size: 0.9em; }
        .empty { color: #555; padding: 15px; background-color: #eef; border-radius: 4px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Hi {{.Name}},</h1>
        <p>Here's your Reddit digest for mentions in the last {{.Days}} day(s) (as of {{.Date}}):</p>

        {{if not .HasMentions}}
        <div class="empty">
            <p>No new mentions found for your tracked brands in the last {{.Days}} day(s).</p>
            <p>Tip: to improve results, widen your keywords or add more relevant subreddits.</p>
        </div>
        {{else}}
            {{range .Brands}}
            <h2 class="brand">Brand: {{.Name}}</h2>
            {{if not .Mentions}}
            <p><em>No new mentions in the last {{$.Days}} day(s) for this brand.</em></p>
            {{else}}
                {{range .Mentions}}
                <div class="mention">
                    <div class="mention-title"><a href="{{.URL}}">{{.Title}}</a></div>
                    <div class="mention-meta">
                        r/{{.Subreddit}} | Score: {{.Score}} | Matched on: <em>{{join .MatchedKeywords ", "}}</em>
                    </div>
                    <div class="mention-meta">Posted at: {{.CreatedAt.Format "2006-01-02 15:04 UTC"}}</div>
                </div>
                {{end}}
            {{end}}
            {{end}}
        {{end}}

        <hr>
        <p><small>To manage your alert preferences, please visit your dashboard.</small></p>
    </div>
</body>
</html>
`

type brandSection struct {
	Name     string
	Mentions []models.Mention
}

type digestData struct {
	Name        string
	Date        string
	Days        int
	HasMentions bool
	Brands      []brandSection
}

// renderDigest builds the HTML digest body for one recipient. Brands
// without mentions still get a section so the reader sees the full
// picture.
func renderDigest(email string, days int, brands []models.Brand, byBrand map[int64][]models.Mention) (string, error) {
	data := digestData{
		Name: strings.SplitN(email, "@", 2)[0],
		Date: time.Now().UTC().Format("2006-01-02"),
		Days: days,
	}
	for _, b := range brands {
		mentions := byBrand[b.ID]
		if len(mentions) > 0 {
			data.HasMentions = true
		}
		data.Brands = append(data.Brands, brandSection{Name: b.Name, Mentions: mentions})
	}

	t, err := template.New("digest").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(digestTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
