package config

// GetDefaultSystemPrompt returns the instruction text sent ahead of every generation prompt
func GetDefaultSystemPrompt() string {
	return `You write product metadata for an online store. Answer only in the requested labeled format, without markdown, commentary, or surrounding quotes.`
}
