/*
Package geotiff reads single-band GeoTIFF rasters, which is how gridded
population estimates are distributed. The reader is deliberately narrow: it
handles the layouts population products actually ship (strips or tiles,
uncompressed, Deflate or PackBits, integer and float samples, GDAL nodata)
and rejects everything else with a clear error instead of guessing.
*/
package geotiff
