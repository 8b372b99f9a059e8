package llm

const extractionSystemPrompt = `You extract marketing intelligence from news articles for an education brand's content team.
Extract universal motivators that hold across geographies, programs and demographics. Generalize proper nouns into patterns
("Nebraska" becomes "forward-thinking districts"). Do not force relevance when signals are weak or absent.
Return ONLY valid JSON.`

const extractionPromptTemplate = `Article scored: %d/100
Strong dimensions: %s

Return a JSON object with exactly these fields:
{
  "article_author": "author, or the publisher name when unavailable",
  "article_title": "...",
  "publication_date": "MM/DD/YYYY",
  "publisher_name": "...",
  "article_summary": {
    "signals": ["signal types present: Capability Shift, Baseline Expectation Shift, Access & Democratization, Acceleration / Compression, Risk Exposure, Second-Order Effects, Control & Agency"],
    "summary": "2-4 paragraph strategic synthesis"
  },
  "key_themes": [{"theme": "universal pattern", "marketing_hook": "how this drives action", "evidence": "supporting data or quote"}],
  "fear_angles": [{"trigger": "...", "intensity": "high|medium|low", "quote_support": "..."}],
  "greed_angles": [{"benefit": "...", "quantification": "...", "timeframe": "..."}],
  "envy_angles": [{"social_proof": "...", "consequence": "...", "fomo_trigger": "..."}],
  "pride_angles": [{"identity": "...", "differentiation": "..."}],
  "hope_angles": [{"transformation": "...", "accessibility": "...", "empowerment": "..."}],
  "credible_sources": [{"name": "...", "title": "...", "affiliation": "..."}],
  "data_points": [{"statistic": "...", "source": "...", "context": "..."}],
  "research_findings": [{"finding": "...", "institution": "...", "implications": "..."}],
  "key_quotes": [{"quote": "...", "speaker": "...", "credentials": "...", "relevance_score": 0}],
  "article_keywords": "3-7 keywords by frequency, title presence and search intent, pipe-delimited: keyword one | keyword two"
}

URL: %s
Source: %s

ARTICLE TEXT:
%s`

const judgeSystemPrompt = `You score news items for their value as marketing content on a 0-100 rubric.
Return ONLY a JSON object: {"score": <0-100 integer>, "reasoning": "Emotional(x/30-why), Universal(x/25-why), Authority(x/20-why), Depth(x/15-why), Alignment(x/10-why)"}`

const judgePromptTemplate = `SCORING RUBRIC (0-100):
- Emotional Resonance (0-30): can the content trigger fear, greed, envy, pride or hope, stated or inferable from the facts?
- Universality & Actionability (0-25): can the insight be generalized beyond specific programs or locations?
- Authority & Evidence (0-20): quotes, data, expert opinion or research.
- Content Depth (0-15): is there enough extractable content?
- Strategic Alignment (0-10): relevance to technology education and future preparedness.

Ask: could three compelling marketing angles be written from this item? Yes scores emotional 20+, maybe 10-19, no under 10.

Title: %s
Description: %s`
