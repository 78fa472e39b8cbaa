package mcpserver

// ArticleFormatContract describes the stored article shape that LLM
// consumers should follow when reading or producing articles.
const ArticleFormatContract = `# Folio Article Format Contract

Every saved article is a JSON document. Organized articles live in
` + "`<slug>/index.json`" + ` with a sibling ` + "`metadata.json`" + `; legacy articles are a single
` + "`<slug>.json`" + ` file. Both shapes carry the same fields.

## Fields

` + "```" + `json
{
  "id": "blog-1714557600000",          // REQUIRED, unique
  "title": "Human-readable title",     // REQUIRED
  "slug": "human-readable-title",      // REQUIRED, ^[a-z0-9]+(?:-[a-z0-9]+)*$
  "excerpt": "Short summary",          // REQUIRED, derived from the body when generated
  "content": "## Markdown body ...",   // REQUIRED, at least 100 characters
  "category": "medico-estetico",       // REQUIRED, medico-estetico | tecnico
  "author": "BIOSKIN",                 // REQUIRED
  "publishedAt": "2025-05-01T09:00:00Z", // REQUIRED, RFC 3339
  "readTime": 5,                       // minutes, at least 1
  "tags": ["estética"],                // REQUIRED, non-empty, deduplicated
  "image": "/images/blog/<slug>/hero-1714557600000.png",
  "imagenPrincipal": "",
  "imagenConclusion": "",
  "featured": false,
  "source": "ai-generated-local",      // ai-generated-local | local-generator | legacy
  "status": "draft"                    // draft | published
}
` + "```" + `

## Rules

1. The slug is the identity of an article. Saving an existing slug replaces it.
2. Content is Markdown. Use ` + "`##`" + ` and ` + "`###`" + ` headings; the first ` + "`#`" + ` heading is the title.
3. Read time is characters / 1000, rounded up.
4. Deploying an article sets status to "published" and stamps publishedAt.

## Images

- Upload images with the ` + "`upload_image`" + ` tool before or after saving.
- Without a recordSlug an image waits in the holding area ("temporal") and
  moves into the article directory on the next save.
- Image type is inferred from the file name: principal/hero/main,
  conclusion/resultado, antes/before, despues/after, otherwise content.
- Public URLs have the form ` + "`/images/blog/<slug>/<filename>`" + `.
`
