package webui

import (
	"html/template"
	"io"
)

// pageHTML is the single page of the UI. CSS is inline so the binary has no
// asset files to ship.
const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>promptpaint</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            min-height: 100vh;
            display: flex;
            justify-content: center;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 50%, #0f3460 100%);
            color: #ffffff;
            padding: 48px 16px;
        }

        .container {
            background: rgba(255, 255, 255, 0.05);
            border: 1px solid rgba(255, 255, 255, 0.1);
            border-radius: 16px;
            padding: 40px;
            width: 100%;
            max-width: 640px;
            box-shadow: 0 25px 50px -12px rgba(0, 0, 0, 0.5);
        }

        h1 {
            font-size: 28px;
            font-weight: 600;
            margin-bottom: 24px;
            background: linear-gradient(135deg, #60a5fa 0%, #a78bfa 100%);
            -webkit-background-clip: text;
            -webkit-text-fill-color: transparent;
            background-clip: text;
        }

        form {
            display: flex;
            flex-direction: column;
            gap: 16px;
        }

        textarea {
            min-height: 120px;
            padding: 14px 16px;
            font-size: 16px;
            font-family: inherit;
            border: 1px solid rgba(255, 255, 255, 0.15);
            border-radius: 8px;
            background: rgba(255, 255, 255, 0.08);
            color: #ffffff;
            resize: vertical;
        }

        label.checkbox {
            display: flex;
            align-items: center;
            gap: 8px;
            font-size: 14px;
            color: rgba(255, 255, 255, 0.8);
        }

        button {
            padding: 14px 24px;
            font-size: 16px;
            font-weight: 600;
            color: #ffffff;
            background: linear-gradient(135deg, #3b82f6 0%, #8b5cf6 100%);
            border: none;
            border-radius: 8px;
            cursor: pointer;
        }

        .message {
            margin-top: 24px;
            padding: 12px 16px;
            font-size: 14px;
            border-radius: 8px;
        }

        .warning {
            color: #fde68a;
            background: rgba(234, 179, 8, 0.15);
            border: 1px solid rgba(234, 179, 8, 0.3);
        }

        .error {
            color: #fca5a5;
            background: rgba(239, 68, 68, 0.15);
            border: 1px solid rgba(239, 68, 68, 0.3);
        }

        .result {
            margin-top: 24px;
            display: flex;
            flex-direction: column;
            gap: 8px;
            font-size: 14px;
            color: rgba(255, 255, 255, 0.8);
        }

        .result img {
            border-radius: 8px;
            align-self: flex-start;
        }

        .footer {
            margin-top: 24px;
            font-size: 12px;
            color: rgba(255, 255, 255, 0.4);
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>promptpaint</h1>

        <form method="POST" action="/generate">
            <textarea name="prompt" placeholder="Describe the picture you want" autofocus>{{.Prompt}}</textarea>
            <label class="checkbox">
                <input type="checkbox" name="enhance" value="on"{{if .Enhance}} checked{{end}}>
                Enhance prompt with the text model
            </label>
            <button type="submit">Generate</button>
        </form>

        {{if .Warning}}<div class="message warning">{{.Warning}}</div>{{end}}
        {{if .Error}}<div class="message error">Error: {{.Error}}</div>{{end}}

        {{if .PreviewURL}}
        <div class="result">
            <a href="{{.SampleURL}}"><img src="{{.PreviewURL}}" width="{{.PreviewWidth}}" alt="generated image"></a>
            <p>Prompt used: {{.PromptUsed}}</p>
            <p>Image saved at: {{.SavedPath}}</p>
        </div>
        {{end}}

        <div class="footer">
            <p>promptpaint {{.Version}}</p>
        </div>
    </div>
</body>
</html>`

// pageData holds what the page template renders.
type pageData struct {
	Prompt  string
	Enhance bool

	Warning string
	Error   string

	// Set on success only.
	PreviewURL   template.URL
	PreviewWidth int
	SampleURL    string
	PromptUsed   string
	SavedPath    string

	Version string
}

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

func renderPage(w io.Writer, data pageData) error {
	return pageTemplate.Execute(w, data)
}
