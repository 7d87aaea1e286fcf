/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package translate

// defaultGlossary holds technical terms that generic backends tend to mistranslate
var defaultGlossary = Terms{
	"en": {
		"tr": {
			"machine learning":            "makine öğrenmesi",
			"neural network":              "yapay sinir ağı",
			"artificial intelligence":     "yapay zeka",
			"deep learning":               "derin öğrenme",
			"computer vision":             "bilgisayarlı görü",
			"natural language processing": "doğal dil işleme",
			"large language model":        "büyük dil modeli",
			"data science":                "veri bilimi",
			"cloud computing":             "bulut bilişim",
		},
	},
	"tr": {
		"en": {
			"makine öğrenmesi":  "machine learning",
			"yapay sinir ağı":   "neural network",
			"yapay zeka":        "artificial intelligence",
			"derin öğrenme":     "deep learning",
			"bilgisayarlı görü": "computer vision",
		},
	},
}

// defaultLexicon is the last-resort word list used when every backend failed
var defaultLexicon = Terms{
	"en": {
		"tr": {
			"hello":         "merhaba",
			"hi":            "selam",
			"good morning":  "günaydın",
			"good evening":  "iyi akşamlar",
			"good night":    "iyi geceler",
			"goodbye":       "hoşça kal",
			"welcome":       "hoş geldiniz",
			"thank you":     "teşekkür ederim",
			"thanks":        "teşekkürler",
			"please":        "lütfen",
			"sorry":         "üzgünüm",
			"excuse me":     "affedersiniz",
			"how are you":   "nasılsınız",
			"yes":           "evet",
			"no":            "hayır",
			"what":          "ne",
			"where":         "nerede",
			"when":          "ne zaman",
			"why":           "niye",
			"how":           "nasıl",
			"today":         "bugün",
			"tomorrow":      "yarın",
			"yesterday":     "dün",
			"now":           "şimdi",
			"time":          "zaman",
			"world":         "dünya",
			"people":        "insanlar",
			"friend":        "arkadaş",
			"news":          "haberler",
			"weather":       "hava durumu",
			"water":         "su",
			"good":          "iyi",
			"bad":           "kötü",
			"very":          "çok",
			"and":           "ve",
			"or":            "veya",
			"but":           "ama",
			"i love you":    "seni seviyorum",
			"see you later": "sonra görüşürüz",
		},
	},
}

// DefaultGlossary returns the built-in technical glossary
func DefaultGlossary() *PhraseBook {
	return NewPhraseBook(defaultGlossary)
}

// DefaultLexicon returns the built-in fallback dictionary
func DefaultLexicon() *PhraseBook {
	return NewPhraseBook(defaultLexicon)
}
