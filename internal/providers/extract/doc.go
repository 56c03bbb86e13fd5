/*
Package extract distils a rendered page into a bounded PageModel: the
structural and stylistic summary the prompt builder hands to the model.

Pipeline per page:

 1. parse with charset detection (chardet + x/net/html/charset) into goquery
 2. drop non-visual elements and hidden nodes (XPath via htmlquery, inline
    styles tokenised with gorilla/css)
 3. classify elements into heading / paragraph / image / link / container
    blocks, merging inline runs and collapsing trivial wrappers
 4. enforce the depth ceiling, then the serialized size ceiling by
    breadth-first retention of the earliest blocks

Extraction never fails; a degenerate page yields an empty model. The output
is deterministic: the same page always serializes to the same bytes.
*/
package extract
