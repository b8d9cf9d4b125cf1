package serial

import "strings"

func isModemPort(description string) bool {
	description = strings.ToLower(description)
	for _, keyword := range modemPortKeywords {
		if strings.Contains(description, keyword) {
			return true
		}
	}
	return false
}
