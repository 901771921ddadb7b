package style

type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

var order = []string{
	"business_elite",
	"hk_retro",
	"hanfu_classic",
	"cyberpunk_neon",
	"anime_fresh",
	"oil_painting",
}

var definitions = map[string]Definition{
	"business_elite": {
		ID:          "business_elite",
		Name:        "商务精英",
		Description: "干练职业形象照",
		Prompt: "Transform this photo into a professional corporate headshot. Tailored dark suit, " +
			"clean light-grey studio backdrop, soft key light with gentle fill, confident relaxed posture, " +
			"crisp focus on the eyes, LinkedIn-ready executive portrait.",
	},
	"hk_retro": {
		ID:          "hk_retro",
		Name:        "港风复古",
		Description: "90年代港片质感",
		Prompt: "Restyle this photo as a 1990s Hong Kong film still. Warm tungsten and neon street light, " +
			"slight film grain and halation, muted teal and amber grade, retro hairstyle and wardrobe, " +
			"nostalgic cinematic mood in the spirit of Wong Kar-wai.",
	},
	"hanfu_classic": {
		ID:          "hanfu_classic",
		Name:        "古风汉服",
		Description: "传统汉服写真",
		Prompt: "Dress the person in elegant traditional Chinese Hanfu with flowing silk layers and delicate embroidery. " +
			"Classical garden setting with plum blossoms and a moon gate, soft diffused daylight, " +
			"refined hair ornaments, serene poetic atmosphere.",
	},
	"cyberpunk_neon": {
		ID:          "cyberpunk_neon",
		Name:        "赛博朋克",
		Description: "霓虹未来都市",
		Prompt: "Place the person in a rain-soaked cyberpunk megacity at night. Magenta and cyan neon rim light, " +
			"holographic signage bokeh, reflective techwear jacket, subtle glowing accents, " +
			"high-contrast futuristic sci-fi portrait.",
	},
	"anime_fresh": {
		ID:          "anime_fresh",
		Name:        "日系动漫",
		Description: "清新动画风格",
		Prompt: "Redraw this photo as a high-quality Japanese anime illustration. Clean line art, soft cel shading, " +
			"luminous eyes, pastel summer sky with drifting clouds, gentle breeze in the hair, " +
			"fresh youthful Makoto Shinkai inspired palette.",
	},
	"oil_painting": {
		ID:          "oil_painting",
		Name:        "古典油画",
		Description: "文艺复兴肖像",
		Prompt: "Render this photo as a classical Renaissance oil portrait. Rich chiaroscuro lighting, " +
			"visible brush strokes and canvas texture, deep umber background, velvet period clothing, " +
			"museum-grade old master painting.",
	},
}

// Catalog returns the style definitions in display order.
func Catalog() []Definition {
	out := make([]Definition, 0, len(order))
	for _, id := range order {
		if def, ok := definitions[id]; ok {
			out = append(out, def)
		}
	}
	return out
}

func Lookup(id string) (Definition, bool) {
	def, ok := definitions[id]
	return def, ok
}

func IDs() []string {
	return append([]string(nil), order...)
}

// DownloadName is the file name offered when a generated portrait is saved.
func DownloadName(def Definition) string {
	return def.Name + "_AI写真.png"
}
