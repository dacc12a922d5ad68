package rag

import (
	wl "github.com/abadojack/whatlanggo"
)

const defaultAnswerLanguage = "the same language as the question"

var languageNames = map[wl.Lang]string{
	wl.Eng: "English",
	wl.Por: "Portuguese",
	wl.Spa: "Spanish",
	wl.Fra: "French",
	wl.Deu: "German",
	wl.Ita: "Italian",
	wl.Vie: "Vietnamese",
	wl.Nld: "Dutch",
	wl.Rus: "Russian",
	wl.Jpn: "Japanese",
	wl.Cmn: "Chinese",
	wl.Kor: "Korean",
}

// detectLang names the language the answer should be written in.
func detectLang(s string) string {
	info := wl.Detect(s)
	if !info.IsReliable() {
		return defaultAnswerLanguage
	}
	return languageName(info.Lang)
}

func languageName(l wl.Lang) string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return defaultAnswerLanguage
}
