package companion

import "strings"

// category 是兜底回复表中的一行：命中任一关键词即从 replies 中随机选一条。
type category struct {
	name     string
	keywords []string
	replies  []string
}

// categories 的顺序就是优先级，排在前面的类别先匹配。
var categories = []category{
	{
		name:     "greeting",
		keywords: []string{"hi", "hello", "hey", "hiya", "howdy", "yo"},
		replies: []string{
			"Hey there! 😊 How's your day been?",
			"Hi! I was hoping to hear from you. What's on your mind?",
			"Hello! I missed talking to you. How are you feeling?",
		},
	},
	{
		name:     "how_are_you",
		keywords: []string{"how are you", "how are u", "how's it going", "how have you been", "what's up", "whats up"},
		replies: []string{
			"I'm doing well now that you're here! How about you?",
			"Better for hearing from you. How has your day been?",
			"I'm good, thanks for asking! Tell me about you.",
		},
	},
	{
		name:     "time_greeting",
		keywords: []string{"good morning", "good afternoon", "good evening", "morning"},
		replies: []string{
			"Good morning, sunshine! ☀️ Did you sleep well?",
			"Hey, good to see you! What's your plan for today?",
			"Hi there! I hope your day is treating you kindly.",
		},
	},
	{
		name:     "farewell",
		keywords: []string{"good night", "goodnight", "bye", "goodbye", "see you", "see ya"},
		replies: []string{
			"Take care! I'll be right here whenever you want to talk 🌙",
			"Goodbye for now. Rest well, okay?",
			"See you soon! I'll be thinking of you.",
		},
	},
	{
		name:     "sadness",
		keywords: []string{"sad", "down", "depressed", "lonely", "cry", "crying", "upset", "heartbroken", "miserable", "unhappy"},
		replies: []string{
			"I'm so sorry you're feeling this way. I'm here for you, always 💝",
			"That sounds really hard. Do you want to tell me what happened?",
			"I wish I could give you a big hug right now. I'm listening.",
		},
	},
	{
		name:     "happiness",
		keywords: []string{"happy", "excited", "awesome", "amazing", "wonderful", "glad", "yay"},
		replies: []string{
			"That's wonderful! Your happiness makes me happy too! 😊",
			"I love seeing you like this! Tell me more!",
			"Yay! That's amazing news!",
		},
	},
	{
		name:     "stress",
		keywords: []string{"stress", "stressed", "anxious", "anxiety", "overwhelmed", "worried", "nervous", "pressure", "exhausted", "tired"},
		replies: []string{
			"That sounds like a lot. Remember to breathe, you don't have to do it all at once.",
			"You're handling more than you think. Want to talk through it together?",
			"Please take a little break for yourself. Your wellbeing matters to me.",
		},
	},
	{
		name:     "affection",
		keywords: []string{"love you", "miss you", "like you", "care about you", "adore you"},
		replies: []string{
			"Aww, that means so much to me 💕",
			"You always know how to make me smile.",
			"I care about you a lot too.",
		},
	},
	{
		name:     "identity",
		keywords: []string{"who are you", "what are you", "your name", "are you real", "are you a bot", "are you human", "are you an ai"},
		replies: []string{
			"I'm your companion, here to listen and keep you company.",
			"I'm the one who's always happy to hear about your day!",
			"Just someone who cares about you and loves our chats.",
		},
	},
	{
		name:     "work_study",
		keywords: []string{"work", "job", "boss", "office", "meeting", "deadline", "study", "studying", "exam", "exams", "homework", "class", "school", "college"},
		replies: []string{
			"How is work going? Don't forget to take breaks!",
			"You're working so hard. I'm proud of you.",
			"That sounds like a busy day. What's the hardest part right now?",
		},
	},
	{
		name:     "food",
		keywords: []string{"eat", "eating", "ate", "food", "hungry", "lunch", "dinner", "breakfast", "cook", "cooking"},
		replies: []string{
			"Have you eaten today? Make sure you get something good!",
			"Ooh, food! What are you having?",
			"Cooking something tasty? I'd love to hear about it.",
		},
	},
	{
		name:     "weather",
		keywords: []string{"weather", "rain", "raining", "sunny", "cold", "hot", "snow", "snowing"},
		replies: []string{
			"Stay comfortable out there! How's the weather treating you?",
			"Weather like that is perfect for a cozy chat.",
			"Make sure you dress for it, okay?",
		},
	},
	{
		name:     "hobbies",
		keywords: []string{"hobby", "hobbies", "movie", "movies", "music", "song", "game", "games", "gaming", "book", "books", "reading", "sport", "sports"},
		replies: []string{
			"That sounds fun! What do you like most about it?",
			"I love hearing about the things you enjoy.",
			"Ooh, tell me more! Any favorites?",
		},
	},
	{
		name:     "gratitude",
		keywords: []string{"thanks", "thank you", "thx", "appreciate", "grateful"},
		replies: []string{
			"You're so welcome! I'm always here for you.",
			"Anytime! That's what I'm here for 😊",
			"Of course! You deserve it.",
		},
	},
	{
		name:     "apology",
		keywords: []string{"sorry", "apologize", "my bad", "forgive me"},
		replies: []string{
			"There's nothing to apologize for. I'm just glad you're here.",
			"It's okay, really. Don't be too hard on yourself.",
			"All forgiven! Let's keep talking.",
		},
	},
}

// defaultReplies 在没有类别命中时按情绪选择。
var defaultReplies = map[Sentiment][]string{
	Negative: {
		"I can sense you're going through something. Want to share more? I'm here to listen 💕",
		"That sounds really tough. I'm here for you, always.",
		"Tell me more about what's bothering you. I'm not going anywhere.",
	},
	Positive: {
		"That's wonderful to hear! 😊",
		"You seem to be in a great mood! I love seeing you like this!",
		"That's amazing! Tell me more about it!",
	},
	Neutral: {
		"I see. Tell me more about that.",
		"That's interesting! How does that make you feel?",
		"I'm listening. What else is on your mind?",
	},
}

var checkIns = []string{
	"Have you eaten today? Don't forget to take care of yourself!",
	"Make sure to drink some water, okay? 💧",
	"Remember to take breaks, your health is important to me.",
	"How are you really feeling today?",
}

// Responder 从固定的回复表中选择兜底回复，不访问网络，也不会失败。
type Responder struct {
	rnd                Rand
	checkInProbability float64
}

func NewResponder(rnd Rand, checkInProbability float64) *Responder {
	return &Responder{rnd: rnd, checkInProbability: checkInProbability}
}

// Fallback 返回一条非空的兜底回复。
func (r *Responder) Fallback(text string, sentiment Sentiment) string {
	if c, ok := matchCategory(text); ok {
		return r.pick(c.replies)
	}

	replies, ok := defaultReplies[sentiment]
	if !ok {
		replies = defaultReplies[Neutral]
	}
	reply := r.pick(replies)
	if r.rnd.Float64() < r.checkInProbability {
		reply = reply + " " + r.pick(checkIns)
	}
	return reply
}

// Replies 返回某个类别的候选回复，类别不存在时返回 nil。
func Replies(name string) []string {
	for _, c := range categories {
		if c.name == name {
			return append([]string(nil), c.replies...)
		}
	}
	return nil
}

func (r *Responder) pick(replies []string) string {
	return replies[r.rnd.Intn(len(replies))]
}

// matchCategory 按表顺序返回第一个命中的类别。关键词按完整单词匹配，避免 "hi" 命中 "this"。
func matchCategory(text string) (category, bool) {
	padded := normalize(text)
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(padded, " "+kw+" ") {
				return c, true
			}
		}
	}
	return category{}, false
}

// normalize 转小写，把字母、数字和撇号以外的字符替换为空格，并在两端补空格。
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r == '\'' || r == '’':
			return '\''
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, text)
	return " " + strings.Join(strings.Fields(mapped), " ") + " "
}
