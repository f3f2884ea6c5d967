package companion

import "strings"

// Sentiment 是对一段文本情绪倾向的粗略判断。
type Sentiment string

const (
	Negative Sentiment = "negative"
	Positive Sentiment = "positive"
	Neutral  Sentiment = "neutral"
)

// 任一列表中的词都不能是另一列表中词的子串。
var (
	negativeWords = []string{
		"sad", "tired", "stressed", "anxious", "worried", "bad", "terrible", "awful",
		"lonely", "depressed", "upset", "angry", "hurt", "scared", "exhausted", "miserable",
	}
	positiveWords = []string{
		"happy", "good", "great", "excited", "wonderful", "amazing", "fantastic",
		"love", "glad", "awesome", "proud",
	}
)

// Classify 统计文本中负面词与正面词出现的次数（子串匹配，不区分大小写），
// 多者胜出，持平时为 Neutral。
func Classify(text string) Sentiment {
	lower := strings.ToLower(text)
	neg := countOccurrences(lower, negativeWords)
	pos := countOccurrences(lower, positiveWords)
	switch {
	case neg > pos:
		return Negative
	case pos > neg:
		return Positive
	default:
		return Neutral
	}
}

func countOccurrences(text string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(text, w)
	}
	return n
}
