/*
Package lazydb implements a lazily-loaded typed value store on top of a plain
directory tree.

We implement:

1. Leaves, one typed value per file: strings, binary blobs, fixed-width
integers and floats, booleans, links to other leaves and numeric arrays.

2. Containers, directories of leaves and sub-containers addressed by key.

3. Databases, a root container plus a version marker, which can be kept as a
working directory or compiled into a single compressed archive.

Nothing is cached. Loading a leaf decodes only its kind tag; the payload is
read when one of the Collect methods is called.

# Technical Details

**Leaf encoding.**
One tag byte (see Kind), then the payload. Numbers are big-endian and exactly
as wide as their kind; floats are stored as their IEEE-754 bits. Strings and
links are raw UTF-8 without a terminator. True and False have no payload. An
array payload is an element kind tag followed by tightly packed elements.

**Meta leaf.**
The root container holds a binary leaf named “.meta” with the three version
bytes (major, minor, patch) of the library that created the database. A
database opens if the major versions are equal and the stored (minor, patch)
is not newer than ours.

**Archives.**
A working directory “x.modb” compiles into “x.ldb”: a tar of the tree, with a
trailing manifest entry listing every file's size and xxhash64, compressed as
an LZ4 frame (or zstd). Decompiling checks the manifest. A database opened from
an archive is compiled back and its working directory removed on Close.

**Crash safety.**
Length-changing edits go through the ofile package, which writes a staging
file next to the original and swaps it in with two renames. Load resolves any
scratch files an interrupted swap left behind.
*/
package lazydb
