package schema

import (
	"fmt"
	"strings"
)

// TagName is the struct tag key carrying mapping directives
const TagName = "doc"

// fieldTag is a parsed `doc:"name,directive,..."` tag
type fieldTag struct {
	name      string
	kinds     []string
	transient bool

	lazy          bool
	idOnly        bool
	ignoreMissing bool
	final         bool
}

func parseFieldTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "-" {
		ft.transient = true
		return ft, nil
	}

	parts := strings.Split(tag, ",")
	ft.name = strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		switch d := strings.TrimSpace(part); d {
		case "":
		case "id", "value", "embedded", "ref", "serialized":
			ft.kinds = append(ft.kinds, d)
		case "transient":
			ft.transient = true
		case "lazy":
			ft.lazy = true
		case "idonly":
			ft.idOnly = true
		case "ignoremissing":
			ft.ignoreMissing = true
		case "final":
			ft.final = true
		default:
			return ft, fmt.Errorf("unknown directive %q", d)
		}
	}
	return ft, nil
}

// typeTag is the parsed tag of the blank `_ struct{}` marker field
type typeTag struct {
	collection      string
	discriminator   string
	noDiscriminator bool
}

func parseTypeTag(tag string) (typeTag, error) {
	var tt typeTag
	parts := strings.Split(tag, ",")
	tt.collection = strings.TrimSpace(parts[0])
	for _, part := range parts[1:] {
		d := strings.TrimSpace(part)
		switch {
		case d == "":
		case d == "nodiscriminator":
			tt.noDiscriminator = true
		case strings.HasPrefix(d, "discriminator="):
			tt.discriminator = strings.TrimPrefix(d, "discriminator=")
		default:
			return tt, fmt.Errorf("unknown type directive %q", d)
		}
	}
	return tt, nil
}

// toSnakeCase converts a string to snake_case
func toSnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := runes[i-1]
			// "UserID" -> "user_id", "HTTPServer" -> "http_server"
			if prev >= 'a' && prev <= 'z' {
				result = append(result, '_')
			} else if i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z' && prev >= 'A' && prev <= 'Z' {
				result = append(result, '_')
			}
		}
		if r >= 'A' && r <= 'Z' {
			result = append(result, r+('a'-'A'))
		} else {
			result = append(result, r)
		}
	}
	return string(result)
}
