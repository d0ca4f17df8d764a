package utils

import (
	"regexp"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\- ]{6,18}[0-9]$`)

// ValidatePhone 宽松校验，允许国际区号与分隔符
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}
