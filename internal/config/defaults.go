package config

// GetDefaultImageMetadataTemplate returns the default template for image alt text and filename generation.
// Variables: ProductTitle, ProductDescription, AvoidFilenames.
func GetDefaultImageMetadataTemplate() string {
	return `You are an expert in e-commerce SEO and product listing optimization.
Analyze the attached product image together with the product title and description below and generate:
1. AltText: a highly descriptive, SEO-friendly alt text (125 characters max).
2. Filename: a short, keyword-rich filename (no spaces, no special characters, no file extension).

Product title: {{.ProductTitle}}
Product description: {{.ProductDescription}}

Guidelines for AltText:
- Describe the main subject of the image with respect to the product title and description.
- Include relevant attributes such as color, material, size, usage, and unique features.
- Use a natural, human-readable sentence.
- Do not start with "Image of" or "Picture of".
- Do not use generic terms like "Product", "Item", or "Photo".

Guidelines for Filename:
- Use hyphens instead of spaces.
- Focus on high-ranking search terms for the product.
- Do not use words like "photo", "image", or "screenshot".
- Do not include a file extension.
- Use only letters, numbers, and hyphens.
{{if .AvoidFilenames}}- Do not reuse any of these filenames already used for this product: {{.AvoidFilenames}}
{{end}}
Example:
AltText: Stylish red canvas sneakers with white laces, rubber sole, and breathable fabric.
Filename: red-canvas-sneakers-white-laces

Reply in exactly this format and nothing else:
AltText: <description>
Filename: <name>`
}

// GetDefaultProductContentTemplate returns the default template for product title and description rewriting.
// Variables: ProductTitle, ProductDescription, MaxTitleLength, MinDescriptionLength.
func GetDefaultProductContentTemplate() string {
	return `You are an expert e-commerce copywriter specializing in search engine optimization.
Rewrite the product title and description below using the attached product image for visual grounding.

Current title: {{.ProductTitle}}
Current description (HTML): {{.ProductDescription}}

Requirements for the title:
- At most {{.MaxTitleLength}} characters.
- Lead with the most important search keywords.
- No quotes, emojis, or ALL CAPS words.

Requirements for the description:
- At least {{.MinDescriptionLength}} characters.
- Valid HTML using only <p>, <ul>, <li>, <strong> and <em> tags.
- Describe materials, features, and use cases visible in the image or stated in the current description.
- Do not invent certifications, prices, or shipping promises.

Reply in exactly this format and nothing else:
Optimized Title: <title>
Optimized Description: <html description>`
}
