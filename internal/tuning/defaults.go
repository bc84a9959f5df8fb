package tuning

import "github.com/adverant/nexus/scanocr-worker/internal/types"

// Default returns the built-in tuning. Each call returns fresh maps and
// slices, so callers may modify their copy freely.
func Default() *Tuning {
	return &Tuning{
		Language: Language{
			MinTextLength:               50,
			CJKShortCircuitRatio:        0.6,
			LatinShortCircuitRatio:      0.6,
			ShortCircuitConfidence:      0.9,
			KoreanOverrideCJKRatio:      0.3,
			KoreanOverrideMaxConfidence: 0.8,
			KoreanOverrideConfidence:    0.7,
			ChineseDowngradeConfidence:  0.6,
			ChineseDowngradeCJKRatio:    0.3,
			MixedMinRatio:               0,
		},
		Sample: Sample{
			LanguageModel: "chi_sim+eng",
			PageSegMode:   PSMAutoOSD,
			DPI:           150,
			RetryDPI:      200,
			MinLength:     50,
			MaxLength:     300,
		},
		Table: Table{
			CannyLow:        50,
			CannyHigh:       150,
			HoughThreshold:  50,
			MinLineLength:   50,
			MaxLineGap:      10,
			AngleTolerance:  10,
			HorizontalRatio: 0.3,
			VerticalRatio:   0.2,
			MinLines:        8,
			Seed:            1,
		},
		Academic: Academic{
			Keywords: []string{
				"abstract", "introduction", "conclusion", "references", "bibliography",
				"method", "methodology", "results", "discussion", "figure", "table", "equation",
				"摘要", "引言", "结论", "参考文献", "方法", "结果", "讨论",
			},
			CitationPatterns: []string{`\[\d+\]`, `\(\d{4}\)`, `et al\.`, `参考文献`},
			SectionPatterns:  []string{`^\d+\.\s+\w+`, `^\d+\.\d+\s+\w+`, `^[A-Z][a-z]+\s*$`},
			MathPatterns:     []string{`[α-ωΑ-Ω]`, `[∑∫∏√∞]`, `\\[a-zA-Z]+`},
			KeywordWeight:    1.0,
			CitationWeight:   2.0,
			SectionWeight:    1.5,
			MathWeight:       1.5,
			Threshold:        3.0,
		},
		ChineseOnly: ChineseOnly{
			ChineseRatio: 0.8,
			LatinRatio:   0.1,
			MinChars:     20,
		},
		Enhance: Enhance{
			Grayscale:     true,
			CLAHE:         true,
			Sharpen:       true,
			Denoise:       true,
			ClipLimit:     2.0,
			TileGridX:     8,
			TileGridY:     8,
			BilateralD:    9,
			SigmaColor:    75,
			SigmaSpace:    75,
			SharpenKernel: []int{-1, -1, -1, -1, 9, -1, -1, -1, -1},
			DefaultScale:  2.5,
		},
		Selection: Selection{
			CJK: map[types.DocumentType]types.OCRConfig{
				types.DocumentAcademic: {
					Name: "academic_paper", LanguageModel: "chi_sim+eng", PageSegMode: PSMAutoOSD, DPI: 400,
					Description: "academic papers with formulas and citations",
				},
				types.DocumentTable: {
					Name: "table_document", LanguageModel: "chi_sim+eng", PageSegMode: PSMRawLine, DPI: 300,
					Description: "ruled tables read line by line",
				},
				types.DocumentChineseOnly: {
					Name: "chinese_only", LanguageModel: "chi_sim", PageSegMode: PSMAutoOSD, DPI: 300,
					Description: "pure Chinese text",
				},
				types.DocumentBatch: {
					Name: "fast_processing", LanguageModel: "chi_sim+eng", PageSegMode: PSMSingleBlock, DPI: 200,
					Description: "throughput-oriented batch runs",
				},
				types.DocumentTechnical: {
					Name: "technical_doc", LanguageModel: "chi_sim+eng", PageSegMode: PSMSingleBlock, DPI: 300,
					Description: "mixed Chinese and English technical text",
				},
			},
			Latin: types.OCRConfig{
				Name: "english_standard", LanguageModel: "eng", PageSegMode: PSMSingleBlock, DPI: 400,
				Description: "English documents",
			},
			Default: types.OCRConfig{
				Name: "technical_doc", LanguageModel: "chi_sim+eng", PageSegMode: PSMSingleBlock, DPI: 300,
				Description: "mixed Chinese and English technical text",
			},
		},
		Presets: map[types.Quality]QualityPreset{
			types.QualityFast:     {ScaleFactor: 2.0, MaxDPI: 200},
			types.QualityBalanced: {ScaleFactor: 2.5},
			types.QualityAccurate: {ScaleFactor: 3.0, MinDPI: 400},
		},
	}
}
