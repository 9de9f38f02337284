package mcpserver

// ZettelFormatURI is the resource URI of the zettel format contract.
const ZettelFormatURI = "zettel://format"

// ZettelFormatContract describes the fields and rules LLM consumers must follow
// when creating zettels.
const ZettelFormatContract = `# Zettel Format Contract

A zettel is a short, atomic note. The store assigns its id and timestamps;
callers supply the fields below.

## Fields

| Field   | Required | Rules                                                        |
|---------|----------|--------------------------------------------------------------|
| title   | yes      | 1 to 255 characters, not blank                               |
| content | yes      | up to 100000 bytes, not blank                                |
| tags    | no       | comma-separated; each tag matches [A-Za-z0-9_-], at most 50 |
| links   | no       | comma-separated ids of other zettels                         |

Characters outside [A-Za-z0-9_-] are stripped from tags and links before
validation, so "machine learning" becomes the single tag "machinelearning".
Tags are case-sensitive when stored but matched case-insensitively when
filtering.

## Links

Links are explicit and directional. A link to a zettel that does not exist
is kept and reported as unresolved. The body may also mention other zettels
as [[id]]; these references are shown but do not count as links.

## Finding related zettels

- get_backlinks lists zettels whose links point at the given id.
- get_related ranks zettels by the number of tags they share.
- get_similar ranks zettels by shared tags (weight 2) and shared words.

## Example

    title:   Spaced repetition
    content: Reviewing at growing intervals beats massed practice. See [[65e19a001e240]].
    tags:    learning, memory
    links:   65e19a001e240
`
