package companion

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TimeOfDayTag 返回给定小时（0-23）对应的时间标签。
func TimeOfDayTag(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Morning time"
	case hour >= 12 && hour < 17:
		return "Afternoon"
	case hour >= 17 && hour < 22:
		return "Evening"
	default:
		return "Late night"
	}
}

// TagMessage 在消息前加上时间标签，例如 "[Evening] hi"。
func TagMessage(tag, message string) string {
	return fmt.Sprintf("[%s] %s", tag, message)
}

var timeTags = []string{"Morning time", "Afternoon", "Evening", "Late night"}

// StripTag 去掉 TagMessage 加上的时间标签，没有标签时原样返回。
func StripTag(message string) string {
	for _, tag := range timeTags {
		if prefix := "[" + tag + "] "; strings.HasPrefix(message, prefix) {
			return message[len(prefix):]
		}
	}
	return message
}

const sentenceDelimiter = ". "

// Truncate 在文本超过 max 个字符时只保留前两句，并以一个句号结尾。
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	sentences := strings.Split(text, sentenceDelimiter)
	if len(sentences) > 2 {
		sentences = sentences[:2]
	}
	joined := strings.Join(sentences, sentenceDelimiter)
	return strings.TrimSuffix(joined, ".") + "."
}
