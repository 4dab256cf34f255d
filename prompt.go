package gorepl

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var defaultPrompt = "\033[1;36mgo\033[0m> "

// ContinuationPrompt is shown while a statement is still open.
var ContinuationPrompt = "\033[1;30m..\033[0m> "

func GetPrompt(ordinal int) string {
	customPrompt := os.Getenv("GOREPL_PROMPT")
	if customPrompt == "" {
		customPrompt = defaultPrompt
	}
	return expandPromptVariables(customPrompt, ordinal)
}

func expandPromptVariables(prompt string, ordinal int) string {
	replacements := map[string]string{
		"%u": os.Getenv("USER"),
		"%n": strconv.Itoa(ordinal),
		"%d": time.Now().Format("2006-01-02"),
		"%t": time.Now().Format("15:04:05"),
		"%$": "$",
	}
	for key, value := range replacements {
		prompt = strings.ReplaceAll(prompt, key, value)
	}
	return prompt
}

func SetPrompt(newPrompt string) error {
	return os.Setenv("GOREPL_PROMPT", newPrompt)
}
