package config

import "github.com/hitoshi/rundown/internal/model"

// DefaultUserAgent はフィードと記事の取得に使うブラウザ風のUser-Agent。
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	generalMaxItems    = 30
	aggregatorMaxItems = 15
)

var defaultGeneralFeeds = []string{
	"https://www.wmur.com/topstories-rss",
	"https://www.wcax.com/arc/outboundfeeds/rss/",
	"https://www.mentalfloss.com/api/content/rss",
	"https://www.thetopicalfruit.com/feed/",
	"https://today.yougov.com/rss/all/",
	"https://wallethub.com/feed/all",
	"https://people.com/feed",
	"https://abc7.com/feed/",
	"https://www.reddit.com/r/nottheonion/.rss",
	"https://www.reddit.com/r/upliftingnews/.rss",
	"https://www.reddit.com/r/LifeProTips/.rss",
	"https://apnews.com/external/import-feed.rss",
	"https://rss.nytimes.com/services/xml/rss/nyt/Upshot.xml",
	"https://feeds.npr.org/1001/rss.xml",
	"https://feeds.npr.org/1007/rss.xml",
	"https://www.realsimple.com/rss/all",
	"https://www.goodnewsnetwork.org/feed/",
	"https://www.eonline.com/feeds/rss/topstories",
	"https://variety.com/feed/",
	"https://pitchfork.com/feed/feed-news/rss",
}

var defaultCelebFeeds = []string{
	"https://www.tmz.com/rss.xml",
	"https://pagesix.com/feed/",
	"https://theblast.com/feed/",
	"https://radaronline.com/feed/",
	"https://www.intouchweekly.com/feed/",
	"https://okmagazine.com/feed/",
	"https://starmagazine.com/feed/",
	"https://www.dailymail.co.uk/tvshowbiz/index.rss",
	"https://www.reddit.com/r/Fauxmoi/.rss",
	"https://www.reddit.com/r/popculturechat/.rss",
	"https://perezhilton.com/feed/",
	"https://www.thehollywoodgossip.com/feed/",
	"https://people.com/rss/celebrity/news/feed.xml",
	"https://nypost.com/rssfeeds/",
}

const generalRubric = `Act as a program director for Magic 96.7, a Hot AC station.
Our target audience is Women 35-54.
Act as producer for Brattleboro, VT morning show with an audience of women 35-54. Rate news topics 1-10.

10: ELITE. Absurd "Stupid News," viral surveys, home hacks (cooking/cleaning), money-saving tips, or relatable lifestyle drama.
1: TRASH. Politics, war, standard crime, depressing/cruel.

RULES:
- BE STINGY: Reserve 9-10 for "must-share" gold.
- PRIORITIZE: Home/lifestyle, money-wins, any surveys.
- DONT SKIP: High-value "stupid news" (bizarre/funny irony).
- BOOST: +2 for VT/NH/MA locations.
- Recipes and Clickbait/clearly sponsored posts get an automatic 1.`

const celebRubric = `Rank this celebrity story 1-10 for a dishy morning radio segment (Moms 35-54).
10: This is either:
A) ELITE TRASH (Scandals, major breakups, A-list feuds, shocking reveals, 'wild' behavior).
Or B) Major/Interesting ENT NEWS (Massive casting like James Bond/Marvel, a beloved show finale, huge award wins, or a trailer for a giant franchise).
8-9: Actors/Musician news
7-8: Standard (Movie trailers, award announcements, harmless A-list updates).
1: AUTOMATIC REJECT (Shopping deals, product endorsements, 'Everything to know' guides, politics NOT celeb related, lookalike stories, or anything about 'discounts').
We want drama, not a shopping catalog.
Subtract 4 from a score if it's a recipe.
Be extremely critical and harsh; be stingy with 10/10s.`

const generalScriptPrompt = `Write a short radio news script based on the article.

STORY: {title}
DETAILS: {summary}

TASK:
1. TEASE: One paragraph, under 40 words; Must stand alone. Fun, punchy, slightly sarcastic.
2. FULL STORY: Conversational radio script - one host, under 2 minutes. Short paragraphs. Clear, spoken language. Lean into humor, irony, and absurd details when they exist. Do not invent facts. Avoid cliche radio talk while keeping it marketable. No intro (like 'Good morning' or 'hold onto your hats') or outro (like 'stay tuned') at the end of the main story.`

const celebScriptPrompt = `Act as a dishy entertainment reporter for Magic 96.7.
Write a celebrity news segment for our 'Hollywood Rundown' section.

ARTICLE TITLE: {title}
ARTICLE CONTENT: {summary}

STRICT INSTRUCTIONS:
1. Summarize into a 200-word "gossip-style" story... be conversational - prioritize humor.
2. 100% FACTUAL. Only use what is in the text. No made-up rumors. Do not invent facts.
3. If content is missing, write "STORY DATA MISSING".
4. Write a high-energy "Coming up next" TEASE.
5. DO NOT start teases with "get ready..."
6. Conversational but not cringy.`

var defaultBannedPhrases = []string{
	"everything to know", "lookalikes", "swears by", "face mist",
	"deal", "discount", "sale", "where to buy", "shop the",
	"must-have", "gift guide", "skincare routine", "amazon", "walmart",
	"double take", "designer lookalikes", "swears this",
}

// DefaultCatalog は組み込みの取得元とレーン設定を返す。
// 呼び出しごとに新しいインスタンスを返すため、呼び出し側で変更してよい。
func DefaultCatalog() *Catalog {
	c := &Catalog{
		AggregatorDomains: []string{"reddit.com"},
		Lanes: []Lane{
			{
				Category:          model.CategoryGeneral,
				Persona:           "General News",
				Rubric:            generalRubric,
				SummaryLimit:      500,
				ScoreTemperature:  0,
				Threshold:         8,
				ScriptPrompt:      generalScriptPrompt,
				ScriptFormat:      FormatDelimited,
				ScriptTemperature: 0.3,
			},
			{
				Category:          model.CategoryCeleb,
				Persona:           "Celebrity/Entertainment News",
				Rubric:            celebRubric,
				SummaryLimit:      0,
				ScoreTemperature:  0.2,
				ScoreMaxTokens:    2,
				BannedPhrases:     append([]string(nil), defaultBannedPhrases...),
				Threshold:         7,
				ScriptPrompt:      celebScriptPrompt,
				ScriptFormat:      FormatLabelled,
				ScriptTemperature: 0.4,
				FallbackTease:     "Hollywood is buzzing...",
			},
		},
	}

	for _, u := range defaultGeneralFeeds {
		limit := generalMaxItems
		if isAggregatorURL(u, c.AggregatorDomains) {
			limit = aggregatorMaxItems
		}
		c.Sources = append(c.Sources, Source{URL: u, Category: model.CategoryGeneral, MaxItems: limit})
	}
	for _, u := range defaultCelebFeeds {
		c.Sources = append(c.Sources, Source{URL: u, Category: model.CategoryCeleb})
	}

	return c
}
