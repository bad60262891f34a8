package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var (
	invitationTemplate = template.Must(template.New("invitation").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; text-align: center;">
  <h1>You are invited to {{.EventName}}</h1>
  <p>Use the link below to claim your ticket.</p>
  <p><a href="{{.Link}}">{{.Link}}</a></p>
  {{if .ImageURL}}<p><img src="{{.ImageURL}}" alt="Invitation QR code" width="256" height="256"></p>{{end}}
</body>
</html>
`))

	ticketTemplate = template.Must(template.New("ticket").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; text-align: center;">
  <h1>Your ticket for {{.EventName}}</h1>
  <p>Hi {{.OwnerName}},</p>
  {{if .Location}}<p>Location: {{.Location}}</p>{{end}}
  {{if .StartTime}}<p>Starts: {{.StartTime}}</p>{{end}}
  <p>Show this code at the entrance or open <a href="{{.Link}}">your ticket</a>.</p>
  {{if .ImageURL}}<p><img src="{{.ImageURL}}" alt="Ticket QR code" width="256" height="256"></p>{{end}}
</body>
</html>
`))
)

type invitationData struct {
	EventName string
	Link      string
	ImageURL  string
}

type ticketData struct {
	EventName string
	OwnerName string
	Location  string
	StartTime string
	Link      string
	ImageURL  string
}

func execute(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s mail: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// formatStart shows an RFC 3339 start time in loc. Other values are shown
// as given.
func formatStart(raw string, loc *time.Location) string {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return ts.In(loc).Format("Mon, 02 Jan 2006 15:04 MST")
}
