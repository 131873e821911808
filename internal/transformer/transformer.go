// Package transformer turns raw Java fragments received from mobile clients
// into compilable units and derives the class identifier they compile to.
package transformer

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf16"
)

var ErrEmptyCode = errors.New("empty code fragment")
var ErrNoClassName = errors.New("could not derive a class name")

// Transformer converts a raw fragment into a compilable unit.
type Transformer interface {
	Transform(code, resourceName, params string, mode Mode) (unit string, classID string, err error)
}

// JavaTransformer is deterministic: identical input always yields the same
// unit and class identifier.
type JavaTransformer struct{}

var classDecl = regexp.MustCompile(`(?m)(^|[\s;{}])((?:public|final|abstract|static|strictfp)\s+)*class\s+([A-Za-z_$][\w$]*)`)

var methodDecl = regexp.MustCompile(`^((?:(?:public|private|protected|static|final|synchronized)\s+)*)` +
	`((?:<[^>]*>\s*)?[\w$.]+(?:<[^()]*>)?(?:\[\])*)\s+([A-Za-z_$][\w$]*)\s*\(([^)]*)\)\s*(?:throws\s+[\w$.,\s]+)?\{`)

func (JavaTransformer) Transform(code, resourceName, params string, mode Mode) (string, string, error) {
	if strings.TrimSpace(code) == "" {
		return "", "", ErrEmptyCode
	}
	if mode == ClassMode {
		return transformClass(code)
	}
	return transformMethod(code, resourceName, params)
}

// transformClass keeps the unit as is; the identifier is the public class if
// there is one, the first declared class otherwise.
func transformClass(code string) (string, string, error) {
	matches := classDecl.FindAllStringSubmatch(code, -1)
	if len(matches) == 0 {
		return "", "", ErrNoClassName
	}
	name := matches[0][3]
	for _, m := range matches {
		if strings.Contains(m[0], "public") {
			name = m[3]
			break
		}
	}
	return code, name, nil
}

var statementKeywords = map[string]bool{"new": true, "return": true, "else": true, "throw": true}

type methodParam struct {
	Type string
	Name string
}

type wrapperData struct {
	ClassName       string
	Method          string
	MethodName      string
	Void            bool
	Statements      string
	DefaultResource string
	DefaultParams   string
	Conversions     []string
}

func transformMethod(code, resourceName, params string) (string, string, error) {
	trimmed := strings.TrimSpace(code)
	data := wrapperData{
		DefaultResource: javaQuote(resourceName),
		DefaultParams:   javaQuote(params),
	}

	loc := methodDecl.FindStringSubmatchIndex(trimmed)
	if loc != nil && statementKeywords[trimmed[loc[4]:loc[5]]] {
		loc = nil
	}
	if loc == nil {
		// bare statements: run them as the body of main
		data.ClassName = snippetName(trimmed)
		data.Statements = trimmed
		return render(data)
	}

	modifiers := trimmed[loc[2]:loc[3]]
	returnType := trimmed[loc[4]:loc[5]]
	name := trimmed[loc[6]:loc[7]]
	paramList := trimmed[loc[8]:loc[9]]

	method := trimmed
	if !hasWord(modifiers, "static") {
		// main can only call static methods
		method = trimmed[:loc[4]] + "static " + trimmed[loc[4]:]
	}

	className := exportName(name)
	if className == "" {
		return "", "", ErrNoClassName
	}

	data.ClassName = className
	data.Method = method
	data.MethodName = name
	data.Void = returnType == "void"
	for i, p := range parseParams(paramList) {
		data.Conversions = append(data.Conversions, conversion(p.Type, i))
	}
	return render(data)
}

var wrapper = template.Must(template.New("wrapper").Parse(`import java.util.*;
import java.io.*;

public class {{.ClassName}} {
{{- if .Method}}

    {{.Method}}
{{- end}}

    private static final String DEFAULT_RESOURCE = "{{.DefaultResource}}";
    private static final String DEFAULT_PARAMS = "{{.DefaultParams}}";

    public static void main(String[] args) throws Exception {
        String resource = args.length > 0 && !args[0].isEmpty() ? args[0] : DEFAULT_RESOURCE;
        String rawParams = args.length > 1 && !args[1].isEmpty() ? args[1] : DEFAULT_PARAMS;
        String[] params = splitParams(rawParams);
{{- if .Statements}}
        {{.Statements}}
{{- else if .Void}}
        {{.MethodName}}({{range $i, $c := .Conversions}}{{if $i}}, {{end}}{{$c}}{{end}});
{{- else}}
        Object result = {{.MethodName}}({{range $i, $c := .Conversions}}{{if $i}}, {{end}}{{$c}}{{end}});
        System.out.print(String.valueOf(result));
{{- end}}
    }

    private static String param(String[] params, int i) {
        return i < params.length ? params[i] : "";
    }

    private static String[] splitParams(String raw) {
        String s = raw.trim();
        if (s.startsWith("[") && s.endsWith("]")) {
            s = s.substring(1, s.length() - 1);
        }
        if (s.isEmpty()) {
            return new String[0];
        }
        String[] parts = s.split(",");
        for (int i = 0; i < parts.length; i++) {
            String p = parts[i].trim();
            if (p.length() >= 2 && p.startsWith("\"") && p.endsWith("\"")) {
                p = p.substring(1, p.length() - 1);
            }
            parts[i] = p;
        }
        return parts;
    }
}
`))

func render(data wrapperData) (string, string, error) {
	var buf bytes.Buffer
	if err := wrapper.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("could not render class %s: %v", data.ClassName, err)
	}
	return buf.String(), data.ClassName, nil
}

// parseParams splits a Java parameter list on top-level commas.
func parseParams(list string) []methodParam {
	var params []methodParam
	depth, start := 0, 0
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}
	add := func(decl string) {
		decl = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(decl), "final "))
		i := strings.LastIndexFunc(decl, unicode.IsSpace)
		if i < 0 {
			params = append(params, methodParam{Type: decl})
			return
		}
		params = append(params, methodParam{Type: strings.TrimSpace(decl[:i]), Name: decl[i+1:]})
	}
	for i, r := range list {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				add(list[start:i])
				start = i + 1
			}
		}
	}
	add(list[start:])
	return params
}

// conversion returns the Java expression turning the i-th textual parameter
// into a value of the declared type.
func conversion(javaType string, i int) string {
	p := fmt.Sprintf("param(params, %d)", i)
	switch javaType {
	case "String", "java.lang.String", "CharSequence", "Object":
		return p
	case "int", "Integer":
		return fmt.Sprintf("Integer.parseInt(%s.trim())", p)
	case "long", "Long":
		return fmt.Sprintf("Long.parseLong(%s.trim())", p)
	case "double", "Double":
		return fmt.Sprintf("Double.parseDouble(%s.trim())", p)
	case "float", "Float":
		return fmt.Sprintf("Float.parseFloat(%s.trim())", p)
	case "short", "Short":
		return fmt.Sprintf("Short.parseShort(%s.trim())", p)
	case "byte", "Byte":
		return fmt.Sprintf("Byte.parseByte(%s.trim())", p)
	case "boolean", "Boolean":
		return fmt.Sprintf("Boolean.parseBoolean(%s.trim())", p)
	case "char", "Character":
		return fmt.Sprintf("%s.charAt(0)", p)
	case "String[]", "String...":
		return "params"
	default:
		return fmt.Sprintf("(%s) null", javaType)
	}
}

func hasWord(s, word string) bool {
	for _, f := range strings.Fields(s) {
		if f == word {
			return true
		}
	}
	return false
}

func exportName(name string) string {
	if name == "" {
		return ""
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func snippetName(code string) string {
	h := fnv.New32a()
	h.Write([]byte(code))
	return fmt.Sprintf("Snippet%08x", h.Sum32())
}

// javaQuote escapes s for use inside a Java string literal.
func javaQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r > 0xFFFF {
				if r > 0xFFFF {
					r1, r2 := utf16.EncodeRune(r)
					fmt.Fprintf(&b, `\u%04x\u%04x`, r1, r2)
				} else {
					fmt.Fprintf(&b, `\u%04x`, r)
				}
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
