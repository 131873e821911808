// Package platform names the mobile platforms clients offload from.
package platform

type Platform int

const (
	Unrecognized Platform = iota
	Android
	IOS
)

// Parse maps the source tag carried by bus events. Tags are case-sensitive.
func Parse(source string) Platform {
	switch source {
	case "Android":
		return Android
	case "iOS":
		return IOS
	default:
		return Unrecognized
	}
}

func (p Platform) String() string {
	switch p {
	case Android:
		return "Android"
	case IOS:
		return "iOS"
	default:
		return "unrecognized"
	}
}
