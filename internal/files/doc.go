// Package files locates pipeline tables on disk.
//
// Raw extracts may arrive as CSV or as an Excel workbook. Resolve maps the
// configured path onto whichever of the two exists, and Stat describes
// files for the run manifest.
//
//	path, ok := files.Resolve(paths.RawData) // Raw_data.csv or Raw_data.xlsx
//	if !ok {
//		return apperrors.NewFileError("open", paths.RawData, apperrors.ErrFileNotFound)
//	}
package files
